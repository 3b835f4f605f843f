package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// transitions lists the legal next phases of each phase.
// Every non-terminal phase may fail.
var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhasePortChecked, PhaseFailed},
	PhasePortChecked:      {PhaseListening, PhaseFailed},
	PhaseListening:        {PhaseCallbackReceived, PhaseFailed},
	PhaseCallbackReceived: {PhaseExchanging, PhaseFailed},
	PhaseExchanging:       {PhaseSucceeded, PhaseFailed},
}

// New creates an attempt in the Idle phase with a fresh correlation token.
func New(p Params) (*Attempt, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	host := p.RedirectHost
	if host == "" {
		host = "localhost"
	}
	path := p.CallbackPath
	if path == "" {
		path = "/"
	}

	return &Attempt{
		ID:           uuid.NewString(),
		Port:         p.Port,
		Tenant:       p.Tenant,
		CallbackPath: path,
		RedirectURI:  RedirectURI(host, p.Port, path),
		State:        state,
		CreatedAt:    time.Now(),
		phase:        PhaseIdle,
		history:      []Phase{PhaseIdle},
	}, nil
}

// RedirectURI builds http://<host>:<port><path>.
func RedirectURI(host string, port int, path string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// Phase returns the current phase.
func (a *Attempt) Phase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

// History returns every phase the attempt has been in, oldest first.
func (a *Attempt) History() []Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Phase, len(a.history))
	copy(out, a.history)
	return out
}

// Advance moves the attempt to the next phase.
// Illegal transitions are rejected and leave the attempt unchanged.
func (a *Attempt) Advance(to Phase) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.advanceLocked(to)
}

func (a *Attempt) advanceLocked(to Phase) error {
	for _, next := range transitions[a.phase] {
		if next == to {
			a.phase = to
			a.history = append(a.history, to)
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", a.phase, to)
}

// Fail records err and moves the attempt to Failed.
func (a *Attempt) Fail(err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.advanceLocked(PhaseFailed); err != nil {
		return err
	}
	a.err = err
	a.code = ""
	return nil
}

// SetCode stores the captured authorization code.
// Only valid while the callback is being processed.
func (a *Attempt) SetCode(code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseCallbackReceived {
		return fmt.Errorf("cannot store authorization code in phase %s", a.phase)
	}
	a.code = code
	return nil
}

// Code returns the captured authorization code ("" unless one was accepted).
func (a *Attempt) Code() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.code
}

// Err returns the failure recorded by Fail.
func (a *Attempt) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// generateState generates the correlation token.
// The token is 32 hex characters (16 random bytes).
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
