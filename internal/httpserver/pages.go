package httpserver

import (
	"log/slog"
	"net/http"
)

// The meaningful result travels server-side, so both pages use 200.

// renderSuccess renders the success page
func (s *Server) renderSuccess(w http.ResponseWriter, message string) {
	s.render(w, "success.html", map[string]string{
		"Message": message,
	})
}

// renderError renders the error page
func (s *Server) renderError(w http.ResponseWriter, errMsg string) {
	s.render(w, "error.html", map[string]string{
		"Error": errMsg,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		// Headers are already out; nothing more can be sent.
		slog.Error("Failed to render template", "template", name, "error", err)
	}
}
