package httpserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
	"github.com/al-bashkir/oidc-tunnel-login/internal/logsanitize"
)

// errorAccessDenied is the OAuth error code for a declined authorization
const errorAccessDenied = "access_denied"

// route sends the exact callback path to handleCallback and everything else,
// including subpaths of the callback path, to handleStray.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == s.opts.CallbackPath {
		s.handleCallback(w, r)
		return
	}
	s.handleStray(w, r)
}

// handleCallback handles the authorization redirect.
// The first request on the callback path commits the attempt's outcome:
//  1. state present but foreign -> StateMismatch, code discarded
//  2. error parameter -> AuthorizationDenied or ProviderError
//  3. missing code or state -> ProviderError
//  4. otherwise -> Result{Code}
//
// Later requests are answered but never change the committed outcome.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	o := s.evaluate(r.URL.Query())

	if !s.commit(o) {
		slog.Warn("Duplicate callback ignored", // #nosec G706 -- values sanitized via logsanitize
			"remote_addr", logsanitize.Sanitize(r.RemoteAddr),
		)
		s.renderError(w, "This sign-in request was already processed. You may close this window.")
		return
	}

	if o.err != nil {
		s.renderError(w, browserMessage(o.err))
		return
	}

	s.renderSuccess(w, "Authentication complete. You may close this window and return to your terminal.")
}

// evaluate turns the callback query into the attempt outcome.
func (s *Server) evaluate(q url.Values) outcome {
	code := q.Get("code")
	state := q.Get("state")
	errorParam := q.Get("error")
	errorDesc := q.Get("error_description")

	slog.Info("Callback received", // #nosec G706 -- only boolean values logged, no injection risk
		"code_present", code != "",
		"state_present", state != "",
		"error_present", errorParam != "",
	)

	// A present but foreign state on an error callback is as suspicious as on a success.
	if state != "" && !s.stateMatches(state) {
		slog.Error("Callback state mismatch, discarding response", // #nosec G706 -- values sanitized via logsanitize
			"state", logsanitize.Mask(state),
		)
		return outcome{err: autherr.Newf(autherr.KindStateMismatch,
			"callback state does not match this login attempt").
			WithHint("the response may be stale or forged; start a new login and use only the URL it prints")}
	}

	if errorParam != "" {
		slog.Error("OIDC error in callback", // #nosec G706 -- values sanitized via logsanitize
			"error", logsanitize.Sanitize(errorParam),
			"description", logsanitize.Sanitize(errorDesc),
		)

		detail := errorParam
		if errorDesc != "" {
			detail = errorParam + ": " + errorDesc
		}
		detail = logsanitize.Sanitize(detail)

		if errorParam == errorAccessDenied {
			return outcome{err: autherr.Newf(autherr.KindAuthorizationDenied,
				"authorization denied (%s)", detail).
				WithHint("sign in again and approve the request, or check that your account may use this application")}
		}
		return outcome{err: autherr.Newf(autherr.KindProviderError,
			"identity provider returned an error (%s)", detail)}
	}

	if code == "" || state == "" {
		slog.Error("Invalid callback parameters", // #nosec G706 -- only boolean values logged, no injection risk
			"code_present", code != "",
			"state_present", state != "",
		)
		return outcome{err: autherr.Newf(autherr.KindProviderError,
			"callback is missing the authorization code or state")}
	}

	slog.Debug("Callback accepted", "code", logsanitize.Mask(code))

	return outcome{result: &Result{Code: code, ReceivedAt: time.Now()}}
}

func (s *Server) stateMatches(state string) bool {
	return subtle.ConstantTimeCompare([]byte(state), []byte(s.opts.State)) == 1
}

// handleStray answers requests outside the callback path (favicon probes,
// scanners). They never resolve Await.
func (s *Server) handleStray(w http.ResponseWriter, r *http.Request) {
	if !s.strayLimiter.Allow() {
		slog.Warn("Rate limit exceeded", // #nosec G706 -- values sanitized via logsanitize
			"path", logsanitize.Sanitize(r.URL.Path),
		)
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	slog.Debug("Ignoring request outside callback path", // #nosec G706 -- values sanitized via logsanitize
		"path", logsanitize.Sanitize(r.URL.Path),
	)
	http.NotFound(w, r)
}

// browserMessage is the failure text shown in the browser.
func browserMessage(err error) string {
	switch autherr.KindOf(err) {
	case autherr.KindStateMismatch:
		return "This response does not belong to the current sign-in attempt and was rejected. Start a new login from your terminal."
	case autherr.KindAuthorizationDenied:
		return "The sign-in request was declined. You may close this window."
	default:
		return "The identity provider reported a problem: " + err.Error()
	}
}
