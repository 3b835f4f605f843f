// Package oidc implements the OpenID Connect client used by a login attempt:
// lazy provider discovery with an optional on-disk cache, the authorization
// code flow with PKCE, and ID token verification.
package oidc

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/al-bashkir/oidc-tunnel-login/internal/config"
)

// ClientOptions are the per-attempt settings of the client. They replace any
// process-wide mutation: the coordinator applies them with Configure and
// restores the previous set when the attempt ends.
type ClientOptions struct {
	// RedirectPort is the only port StartAuthFlow accepts in a redirect URI (0 = any)
	RedirectPort int

	// SuppressBrowserLaunch keeps the client from opening a local browser
	SuppressBrowserLaunch bool

	// CachePersistenceEnabled allows reading and writing the discovery cache
	CachePersistenceEnabled bool

	// Tenant selects the directory for multi-tenant issuers
	Tenant string
}

// Provider is the OIDC client.
// Construction does no network I/O; discovery happens on first use.
type Provider struct {
	cfg            config.OIDCConfig
	cachePath      string
	httpClient     *http.Client
	discoveryTries uint

	mu         sync.Mutex
	opts       ClientOptions
	discovered map[string]*oidc.Provider // issuer -> provider
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithDiscoveryCache sets the discovery cache file.
func WithDiscoveryCache(path string) ProviderOption {
	return func(p *Provider) {
		p.cachePath = path
	}
}

// WithHTTPClient sets the client used for discovery, JWKS and token requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithDiscoveryTries sets how many times discovery is attempted.
func WithDiscoveryTries(n uint) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.discoveryTries = n
		}
	}
}

// NewProvider creates a new OIDC client from the configuration.
func NewProvider(cfg *config.OIDCConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:            *cfg,
		discoveryTries: 3,
		opts: ClientOptions{
			SuppressBrowserLaunch:   true,
			CachePersistenceEnabled: true,
			Tenant:                  cfg.Tenant,
		},
		discovered: make(map[string]*oidc.Provider),
	}
	p.cfg.Scopes = append([]string(nil), cfg.Scopes...)

	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.discoveryTimeout()}
	}

	return p
}

// Options returns the options currently in effect.
func (p *Provider) Options() ClientOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// Configure applies opts and returns a function restoring the previous options.
func (p *Provider) Configure(opts ClientOptions) (restore func()) {
	p.mu.Lock()
	previous := p.opts
	p.opts = opts
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.opts = previous
		p.mu.Unlock()
	}
}

// Issuer returns the issuer URL for the current tenant.
func (p *Provider) Issuer() string {
	return resolveTenantIssuer(p.cfg.Issuer, p.Options().Tenant)
}

// checkRedirectURI ensures the redirect URI uses the configured fixed port.
func (p *Provider) checkRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	want := p.Options().RedirectPort
	if want == 0 {
		return nil
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port != want {
		return fmt.Errorf("redirect URI %s does not use the configured port %d", redirectURI, want)
	}
	return nil
}

// resolveTenantIssuer rewrites multi-tenant Microsoft Entra issuers for a
// specific tenant: a {tenant} placeholder is substituted and a /common,
// /organizations or /consumers segment is replaced. Other issuers are
// returned unchanged.
func resolveTenantIssuer(issuer, tenant string) string {
	if issuer == "" || tenant == "" {
		return issuer
	}

	trimmed := strings.TrimSuffix(issuer, "/")
	if strings.Contains(trimmed, "{tenant}") {
		return strings.ReplaceAll(trimmed, "{tenant}", tenant)
	}

	if !strings.Contains(trimmed, "login.microsoftonline.com") {
		return issuer
	}

	for _, segment := range []string{"/common", "/organizations", "/consumers"} {
		idx := strings.Index(trimmed, segment)
		if idx == -1 {
			continue
		}
		suffix := trimmed[idx+len(segment):]
		if suffix != "" && suffix[0] != '/' {
			continue
		}
		return trimmed[:idx] + "/" + tenant + suffix
	}

	return issuer
}
