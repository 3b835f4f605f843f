// Package login coordinates one interactive sign-in attempt: it checks the
// fixed callback port, cleans client caches, opens the capture listener,
// presents the authorization URL and redeems the captured code.
package login

//go:generate mockgen -destination=mocks/mock_identity_client.go -package=mocks -source=login.go IdentityClient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
	"github.com/al-bashkir/oidc-tunnel-login/internal/cache"
	"github.com/al-bashkir/oidc-tunnel-login/internal/config"
	"github.com/al-bashkir/oidc-tunnel-login/internal/httpserver"
	"github.com/al-bashkir/oidc-tunnel-login/internal/oidc"
	"github.com/al-bashkir/oidc-tunnel-login/internal/portcheck"
	"github.com/al-bashkir/oidc-tunnel-login/internal/present"
	"github.com/al-bashkir/oidc-tunnel-login/internal/session"
)

// IdentityClient is the OpenID Connect client driven by the coordinator.
type IdentityClient interface {
	// Configure applies per-attempt options and returns a function that restores the previous ones
	Configure(opts oidc.ClientOptions) (restore func())

	// StartAuthFlow builds the authorization URL for state and redirectURI
	StartAuthFlow(ctx context.Context, state, redirectURI string) (*oidc.AuthFlowData, error)

	// ExchangeCode redeems an authorization code
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*oidc.TokenData, error)
}

// PortChecker reports whether a port can be bound.
type PortChecker interface {
	Check(ctx context.Context, port int) error
}

// Presenter shows the authorization URL to the operator.
type Presenter interface {
	Present(p present.Prompt) error
}

// CacheCleaner removes stale cache artifacts.
type CacheCleaner interface {
	Run(ctx context.Context) *cache.Report
}

// Request is one invocation's input.
type Request struct {
	// Port is the fixed callback port forwarded over SSH
	Port int

	// Tenant overrides the configured tenant when set
	Tenant string
}

// Outcome is what an attempt produced. Run returns it on failure too, so the
// caller can inspect the phases the attempt went through.
type Outcome struct {
	// Attempt is the attempt record
	Attempt *session.Attempt

	// Tokens is set only when the attempt succeeded
	Tokens *oidc.TokenData

	// Warnings are non-fatal cache cleanup problems
	Warnings []error
}

// Coordinator runs login attempts.
type Coordinator struct {
	Config    *config.Config
	Client    IdentityClient
	Presenter Presenter
	Hygiene   CacheCleaner
	Checker   PortChecker
}

// New creates a coordinator with the default port checker and cache hygiene
// derived from cfg.
func New(cfg *config.Config, client IdentityClient, presenter Presenter) *Coordinator {
	return &Coordinator{
		Config:    cfg,
		Client:    client,
		Presenter: presenter,
		Hygiene: &cache.Hygiene{
			Artifacts:   cfg.Cache.Artifacts,
			LockTimeout: time.Duration(cfg.Cache.LockTimeout) * time.Second,
		},
		Checker: portcheck.NewChecker(),
	}
}

// Run performs one attempt. It never falls back to another port and never
// retries the exchange. On every terminal path the listener is stopped and the
// client options are restored before the attempt is marked Succeeded or Failed.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Outcome, error) {
	tenant := req.Tenant
	if tenant == "" {
		tenant = c.Config.OIDC.Tenant
	}

	attempt, err := session.New(session.Params{
		Port:         req.Port,
		Tenant:       tenant,
		RedirectHost: c.Config.Login.RedirectHost,
		CallbackPath: c.Config.Login.CallbackPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login attempt: %w", err)
	}
	out := &Outcome{Attempt: attempt}

	log := slog.With("attempt_id", attempt.ID, "port", req.Port)
	log.Info("Starting login", "tenant", tenant, "redirect_uri", attempt.RedirectURI)

	// 1. Port check. Nothing is opened or changed before the port is known usable.
	if err := c.Checker.Check(ctx, req.Port); err != nil {
		return out, c.fail(log, attempt, err)
	}
	if err := attempt.Advance(session.PhasePortChecked); err != nil {
		return out, err
	}

	// 2. Cache hygiene. Warnings never abort the attempt.
	if c.Hygiene != nil {
		out.Warnings = c.Hygiene.Run(ctx).Warnings
	}

	// 3. Per-attempt client options, restored on every exit path.
	restore := c.Client.Configure(oidc.ClientOptions{
		RedirectPort:            req.Port,
		SuppressBrowserLaunch:   !c.Config.Login.OpenBrowser,
		CachePersistenceEnabled: !c.Config.Cache.DisableDuringLogin,
		Tenant:                  tenant,
	})

	// 4. Bind the listener right after the check.
	srv, err := httpserver.Start(ctx, httpserver.Options{
		Port:         req.Port,
		State:        attempt.State,
		CallbackPath: attempt.CallbackPath,
	})
	if err != nil {
		restore()
		return out, c.fail(log, attempt, err)
	}
	if err := attempt.Advance(session.PhaseListening); err != nil {
		c.teardown(log, srv, restore)
		return out, err
	}

	flow, err := c.Client.StartAuthFlow(ctx, attempt.State, attempt.RedirectURI)
	if err != nil {
		c.teardown(log, srv, restore)
		return out, c.fail(log, attempt, classify(ctx, err, autherr.KindProviderError,
			"failed to start sign-in with the identity provider"))
	}

	if err := c.Presenter.Present(present.Prompt{
		AuthURL:               flow.AuthURL,
		Port:                  req.Port,
		Timeout:               c.timeout(),
		SuppressBrowserLaunch: !c.Config.Login.OpenBrowser,
	}); err != nil {
		c.teardown(log, srv, restore)
		return out, c.fail(log, attempt, err)
	}

	// 5. Wait for the single authoritative callback. Await stops the listener.
	result, err := srv.Await(ctx, c.timeout())
	if err != nil {
		c.teardown(log, srv, restore)
		if callbackArrived(err) {
			if aerr := attempt.Advance(session.PhaseCallbackReceived); aerr != nil {
				return out, errors.Join(err, aerr)
			}
		}
		return out, c.fail(log, attempt, err)
	}

	if err := attempt.Advance(session.PhaseCallbackReceived); err != nil {
		c.teardown(log, srv, restore)
		return out, err
	}
	if err := attempt.SetCode(result.Code); err != nil {
		c.teardown(log, srv, restore)
		return out, err
	}
	log.Info("Authorization code received")

	// 6. Exchange once, with the same redirect URI.
	if err := attempt.Advance(session.PhaseExchanging); err != nil {
		c.teardown(log, srv, restore)
		return out, err
	}
	tokens, err := c.Client.ExchangeCode(ctx, attempt.Code(), flow.CodeVerifier, attempt.RedirectURI)
	c.teardown(log, srv, restore)
	if err != nil {
		return out, c.fail(log, attempt, classify(ctx, err, autherr.KindExchangeFailed,
			"failed to exchange the authorization code"))
	}

	if err := attempt.Advance(session.PhaseSucceeded); err != nil {
		return out, err
	}
	out.Tokens = tokens

	log.Info("Login succeeded", "username", tokens.Username)
	return out, nil
}

func (c *Coordinator) timeout() time.Duration {
	if c.Config.Login.Timeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Config.Login.Timeout) * time.Second
}

// teardown stops the listener and restores the client options.
func (c *Coordinator) teardown(log *slog.Logger, srv *httpserver.Server, restore func()) {
	if err := srv.Stop(); err != nil {
		log.Warn("Callback listener did not stop cleanly", "error", err)
	}
	restore()
}

func (c *Coordinator) fail(log *slog.Logger, attempt *session.Attempt, err error) error {
	if ferr := attempt.Fail(err); ferr != nil {
		return errors.Join(err, ferr)
	}
	log.Error("Login failed", "kind", autherr.KindOf(err), "error", err)
	return err
}

// callbackArrived reports whether err was produced by a request on the
// callback path rather than by the timeout or cancellation.
func callbackArrived(err error) bool {
	switch autherr.KindOf(err) {
	case autherr.KindStateMismatch, autherr.KindAuthorizationDenied, autherr.KindProviderError:
		return true
	}
	return false
}

// classify wraps a collaborator error in kind unless it already carries one.
// An error caused by ctx cancellation becomes Cancelled.
func classify(ctx context.Context, err error, kind autherr.Kind, message string) error {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}
	if ctx.Err() != nil {
		return autherr.New(autherr.KindCancelled, "login cancelled", err)
	}

	e := autherr.New(kind, message, err)
	if kind == autherr.KindExchangeFailed {
		e = e.WithHint("authorization codes are single-use and short-lived; start a new login")
	}
	return e
}
