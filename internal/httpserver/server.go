// Package httpserver implements the loopback listener that captures the
// OIDC authorization redirect on a fixed port.
//
// A Server binds 127.0.0.1:<port>, commits the first request on the callback
// path as the attempt's result and answers everything else with a minimal
// response. Await blocks for that result and always releases the port.
package httpserver

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
	"github.com/al-bashkir/oidc-tunnel-login/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// loopbackHost is the only interface the listener binds
const loopbackHost = "127.0.0.1"

// shutdownTimeout bounds the graceful shutdown before connections are force-closed
const shutdownTimeout = 5 * time.Second

// Options configures a capture listener.
type Options struct {
	// Port is the fixed port to bind. 0 picks an ephemeral port (tests only).
	Port int

	// State is the correlation token the callback must echo back
	State string

	// CallbackPath is the path the provider redirects to (default "/")
	CallbackPath string
}

// Result is a validated authorization response.
type Result struct {
	// Code is the authorization code
	Code string

	// ReceivedAt is when the callback was committed
	ReceivedAt time.Time
}

type outcome struct {
	result *Result
	err    error
}

// Server is a single-use redirect capture listener
type Server struct {
	opts         Options
	listener     net.Listener
	httpServer   *http.Server
	mux          *http.ServeMux
	templates    *template.Template
	strayLimiter *rate.Limiter

	commitOnce sync.Once
	resultCh   chan outcome
	awaited    atomic.Bool

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// newServer builds the handler stack without binding a socket.
func newServer(opts Options) (*Server, error) {
	// Parse templates
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	if opts.CallbackPath == "" {
		opts.CallbackPath = "/"
	}

	s := &Server{
		opts:         opts,
		mux:          http.NewServeMux(),
		templates:    templates,
		strayLimiter: rate.NewLimiter(5, 20),
		resultCh:     make(chan outcome, 1),
		done:         make(chan struct{}),
	}

	// Register routes. The callback path is never used as a mux pattern;
	// every request is dispatched on an exact path match.
	s.mux.HandleFunc("/", s.route)

	// Wrap with middleware
	handler := loggingMiddleware(s.mux)
	handler = recoveryMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Second,
	}

	return s, nil
}

// Start binds the loopback port and starts serving in the background.
// A port held by someone else fails with PortUnavailable; any other bind
// error fails with ListenerBindFailed. No other port is ever tried.
func Start(ctx context.Context, opts Options) (*Server, error) {
	s, err := newServer(opts)
	if err != nil {
		return nil, autherr.New(autherr.KindListenerBindFailed, "failed to load callback pages", err)
	}

	addr := net.JoinHostPort(loopbackHost, strconv.Itoa(opts.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, bindError(opts.Port, err)
	}
	s.listener = ln

	slog.Info("Callback listener started",
		"addr", ln.Addr().String(),
		"callback_path", s.opts.CallbackPath,
	)

	go s.serve()

	return s, nil
}

func (s *Server) serve() {
	defer close(s.done)

	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Callback listener stopped unexpectedly", "error", err)
		s.commit(outcome{err: autherr.New(autherr.KindListenerBindFailed,
			"callback listener stopped unexpectedly", err)})
	}
}

func bindError(port int, err error) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		return autherr.New(autherr.KindPortUnavailable,
			fmt.Sprintf("port %d became unavailable before the listener could bind it", port), err).
			WithHint("another process took the port; retry with a different --port and a matching ssh -L")
	}
	return autherr.New(autherr.KindListenerBindFailed,
		fmt.Sprintf("failed to bind %s:%d", loopbackHost, port), err)
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns the bound address (127.0.0.1:<port>).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// RedirectURI returns the redirect URI for host ("localhost" or "127.0.0.1").
func (s *Server) RedirectURI(host string) string {
	return session.RedirectURI(host, s.Port(), s.opts.CallbackPath)
}

// commit records the attempt's outcome. Only the first call wins.
func (s *Server) commit(o outcome) bool {
	won := false
	s.commitOnce.Do(func() {
		won = true
		s.resultCh <- o
	})
	return won
}

// Await blocks until the callback is committed, the timeout elapses or ctx
// is cancelled, whichever comes first. The listener is stopped before Await
// returns on every path. Await may be called once.
func (s *Server) Await(ctx context.Context, timeout time.Duration) (*Result, error) {
	if !s.awaited.CompareAndSwap(false, true) {
		return nil, errors.New("callback already awaited")
	}

	defer func() {
		if err := s.Stop(); err != nil {
			slog.Warn("Callback listener did not shut down cleanly", "error", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var o outcome
	select {
	case o = <-s.resultCh:
	case <-timer.C:
		// A callback racing the timer may still win the commit.
		s.commit(outcome{err: autherr.Newf(autherr.KindTimeout,
			"no callback received within %s", timeout).
			WithHint("check that the SSH tunnel (ssh -L %d:127.0.0.1:%d) is up and start a new login", s.Port(), s.Port())})
		o = <-s.resultCh
	case <-ctx.Done():
		s.commit(outcome{err: autherr.New(autherr.KindCancelled, "login cancelled", ctx.Err())})
		o = <-s.resultCh
	}

	return o.result, o.err
}

// Stop shuts the listener down and waits until the port is released.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("graceful shutdown failed: %w", err)
			if cerr := s.httpServer.Close(); cerr != nil {
				slog.Warn("Failed to force-close callback listener", "error", cerr)
			}
		}
		<-s.done

		slog.Debug("Callback listener stopped", "addr", s.listener.Addr().String())
	})
	return s.stopErr
}
