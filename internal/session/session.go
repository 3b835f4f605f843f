// Package session models the single authorization attempt of a login run.
package session

import (
	"sync"
	"time"
)

// Phase is a step of the attempt state machine.
type Phase int

// Attempt phases, in order
const (
	PhaseIdle Phase = iota
	PhasePortChecked
	PhaseListening
	PhaseCallbackReceived
	PhaseExchanging
	PhaseSucceeded
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "Idle",
	PhasePortChecked:      "PortChecked",
	PhaseListening:        "Listening",
	PhaseCallbackReceived: "CallbackReceived",
	PhaseExchanging:       "Exchanging",
	PhaseSucceeded:        "Succeeded",
	PhaseFailed:           "Failed",
}

// String returns the phase name
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether no further transition is possible
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Attempt is one authorization attempt.
// It tracks the correlation token, the redirect URI the provider will call
// and the outcome, from port check through token exchange.
type Attempt struct {
	// ID correlates log lines of this attempt (UUID, not secret)
	ID string

	// Port is the fixed callback port
	Port int

	// Tenant is the optional directory/tenant identifier
	Tenant string

	// CallbackPath is the path the provider redirects to
	CallbackPath string

	// RedirectURI is registered with the provider and reused for the token exchange
	RedirectURI string

	// State is the correlation token echoed back in the callback (32 hex chars)
	State string

	// CreatedAt is when the attempt started
	CreatedAt time.Time

	mu      sync.RWMutex
	phase   Phase
	history []Phase
	code    string
	err     error
}

// Params describes a new attempt.
type Params struct {
	Port         int
	Tenant       string
	RedirectHost string
	CallbackPath string
}
