// Package portcheck validates the fixed callback port before the listener binds it.
//
// The check binds 127.0.0.1:<port> and releases it immediately. When that bind
// fails, the TCP connection table is inspected to tell a port still draining
// in TIME_WAIT apart from one held by another process, so the operator gets
// the right advice. The check is advisory; the listener's own bind is final.
//
// On Linux net.Listen sets SO_REUSEADDR, so a port whose only sockets are in
// TIME_WAIT binds fine and the check passes. The TIME_WAIT diagnosis is
// therefore mostly seen on platforms without that behaviour (Windows, some
// BSDs) or when a TIME_WAIT entry coexists with a live socket on the port.
package portcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/al-bashkir/oidc-tunnel-login/internal/autherr"
)

const (
	// MinPort is the lowest non-privileged port accepted for the callback
	MinPort = 1024
	// MaxPort is the highest valid TCP port
	MaxPort = 65535
)

// defaultFinTimeout is used when tcp_fin_timeout cannot be read
const defaultFinTimeout = 60 * time.Second

// finTimeoutPath is the Linux sysctl holding the FIN-WAIT-2 timeout
const finTimeoutPath = "/proc/sys/net/ipv4/tcp_fin_timeout"

// ConnectionLister returns the host's TCP connections.
type ConnectionLister func(ctx context.Context) ([]gnet.ConnectionStat, error)

// Checker probes a port and diagnoses probe failures.
type Checker struct {
	// Host is the address probed (always loopback in production)
	Host string

	// Connections lists TCP connections for diagnosis
	Connections ConnectionLister

	// FinTimeout reports how long a TIME_WAIT socket is expected to linger
	FinTimeout func() time.Duration
}

// NewChecker returns a Checker probing 127.0.0.1 with gopsutil diagnosis.
func NewChecker() *Checker {
	return &Checker{
		Host: "127.0.0.1",
		Connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "tcp")
		},
		FinTimeout: readFinTimeout,
	}
}

// Check validates the port range and probes the port with a bind-and-release.
// It returns nil when the port is usable, otherwise an *autherr.Error of kind
// PortOutOfRange or PortUnavailable carrying an operator hint.
func (c *Checker) Check(ctx context.Context, port int) error {
	if err := ValidateRange(port); err != nil {
		return err
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return c.diagnose(ctx, port, err)
	}
	if err := ln.Close(); err != nil {
		slog.Warn("Failed to close port probe listener", "port", port, "error", err)
	}

	slog.Debug("Port is available", "port", port)
	return nil
}

// ValidateRange fails with PortOutOfRange for ports outside MinPort-MaxPort.
func ValidateRange(port int) error {
	if port < MinPort || port > MaxPort {
		return autherr.Newf(autherr.KindPortOutOfRange,
			"port %d is out of range", port).
			WithHint("choose a port between %d and %d", MinPort, MaxPort)
	}
	return nil
}

// Check runs the default Checker.
func Check(ctx context.Context, port int) error {
	return NewChecker().Check(ctx, port)
}

func (c *Checker) diagnose(ctx context.Context, port int, probeErr error) error {
	state := c.portState(ctx, port)

	slog.Debug("Port probe failed",
		"port", port,
		"state", state,
		"error", probeErr,
	)

	if state == stateTimeWait {
		wait := defaultFinTimeout
		if c.FinTimeout != nil {
			wait = c.FinTimeout()
		}
		return autherr.New(autherr.KindPortUnavailable,
			fmt.Sprintf("port %d is in TIME_WAIT from a previous connection", port), probeErr).
			WithHint("wait about %s for the OS to release it, or use --port %d (and a matching ssh -L)",
				wait.Round(time.Second), alternatePort(port))
	}

	return autherr.New(autherr.KindPortUnavailable,
		fmt.Sprintf("port %d is already in use", port), probeErr).
		WithHint("use a different port, e.g. --port %d; find the owner with 'lsof -i :%d' or 'netstat -ano | findstr :%d'",
			alternatePort(port), port, port)
}

type portState string

const (
	stateUnknown  portState = "unknown"
	stateListen   portState = "listen"
	stateTimeWait portState = "time_wait"
)

// portState reports what the connection table says about the local port.
// A listening socket wins over TIME_WAIT entries for the same port.
func (c *Checker) portState(ctx context.Context, port int) portState {
	if c.Connections == nil {
		return stateUnknown
	}

	conns, err := c.Connections(ctx)
	if err != nil {
		slog.Debug("Cannot inspect TCP connections", "error", err)
		return stateUnknown
	}

	state := stateUnknown
	for _, conn := range conns {
		if int(conn.Laddr.Port) != port {
			continue
		}
		switch strings.ToUpper(conn.Status) {
		case "LISTEN":
			return stateListen
		case "TIME_WAIT":
			state = stateTimeWait
		}
	}
	return state
}

func alternatePort(port int) int {
	if port >= MaxPort {
		return port - 1
	}
	return port + 1
}

func readFinTimeout() time.Duration {
	data, err := os.ReadFile(finTimeoutPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("Cannot read tcp_fin_timeout", "error", err)
		}
		return defaultFinTimeout
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || seconds <= 0 {
		return defaultFinTimeout
	}
	return time.Duration(seconds) * time.Second
}
