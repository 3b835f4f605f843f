// Package present prints the authorization URL for manual use on another
// machine and, optionally, opens it in a local browser.
package present

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
	"golang.org/x/term"
)

// ruleWidth is the width of the banner rules
const ruleWidth = 70

var (
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
)

// Prompt is what the operator needs to complete the sign-in.
type Prompt struct {
	// AuthURL is the authorization endpoint URL
	AuthURL string

	// Port is the forwarded callback port
	Port int

	// Timeout is how long the listener waits for the callback
	Timeout time.Duration

	// SuppressBrowserLaunch disables the local browser attempt
	SuppressBrowserLaunch bool
}

// Presenter writes prompts to an output stream.
type Presenter struct {
	// Out receives the prompt (usually stderr, so stdout stays scriptable)
	Out io.Writer

	// Styled enables lipgloss styling; plain text otherwise
	Styled bool

	// Hostname appears in the SSH tunnel hint
	Hostname string

	// OpenURL launches a browser
	OpenURL func(url string) error
}

// New returns a Presenter for out. Styling is enabled only when out is a terminal.
func New(out io.Writer) *Presenter {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "<this-host>"
	}

	return &Presenter{
		Out:      out,
		Styled:   isTerminal(out),
		Hostname: host,
		OpenURL:  browser.OpenURL,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (p *Presenter) style(s lipgloss.Style, text string) string {
	if !p.Styled {
		return text
	}
	return s.Render(text)
}

// Present prints the sign-in banner. The URL is always printed unstyled on
// its own line so it can be copied as-is.
func (p *Presenter) Present(pr Prompt) error {
	rule := p.style(ruleStyle, strings.Repeat("=", ruleWidth))

	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, p.style(titleStyle, "To sign in, use a web browser to open the page:"))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, pr.AuthURL)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, p.style(hintStyle, "If the browser runs on another machine, forward the callback port first:"))
	fmt.Fprintln(&b, p.style(hintStyle, "  "+TunnelCommand(pr.Port, p.Hostname)))
	if pr.Timeout > 0 {
		fmt.Fprintln(&b, p.style(hintStyle, fmt.Sprintf("Waiting up to %s for the sign-in to complete...", pr.Timeout)))
	}
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	if _, err := io.WriteString(p.Out, b.String()); err != nil {
		return fmt.Errorf("failed to print sign-in URL: %w", err)
	}

	if !pr.SuppressBrowserLaunch && p.OpenURL != nil {
		if err := p.OpenURL(pr.AuthURL); err != nil {
			slog.Warn("Failed to open browser, use the URL above", "error", err)
		}
	}

	return nil
}

// Success prints the sign-in summary.
func (p *Presenter) Success(username string, expiry time.Time, tokenFile string) error {
	var b strings.Builder

	who := username
	if who == "" {
		who = "unknown user"
	}
	fmt.Fprintln(&b, p.style(successStyle, "Signed in as "+who))
	if !expiry.IsZero() {
		fmt.Fprintf(&b, "Access token expires at %s\n", expiry.Local().Format(time.RFC1123))
	}
	if tokenFile != "" {
		fmt.Fprintf(&b, "Tokens written to %s\n", tokenFile)
	}

	_, err := io.WriteString(p.Out, b.String())
	return err
}

// TunnelCommand returns the ssh port-forward command for port.
func TunnelCommand(port int, host string) string {
	return fmt.Sprintf("ssh -L %d:127.0.0.1:%d <user>@%s", port, port, host)
}
