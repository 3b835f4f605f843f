package session

import (
	"errors"
	"testing"
)

func newAttempt(t *testing.T) *Attempt {
	t.Helper()

	a, err := New(Params{Port: 8400, RedirectHost: "127.0.0.1", CallbackPath: "/callback"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNewAttempt(t *testing.T) {
	a := newAttempt(t)

	if a.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want Idle", a.Phase())
	}

	if len(a.State) != 32 {
		t.Errorf("state length = %d, want 32", len(a.State))
	}

	if a.RedirectURI != "http://127.0.0.1:8400/callback" {
		t.Errorf("RedirectURI = %s", a.RedirectURI)
	}

	if a.ID == "" {
		t.Error("attempt ID is empty")
	}
}

func TestNewAttemptDefaults(t *testing.T) {
	a, err := New(Params{Port: 8400, Tenant: "contoso"})
	if err != nil {
		t.Fatal(err)
	}

	if a.RedirectURI != "http://localhost:8400/" {
		t.Errorf("RedirectURI = %s, want http://localhost:8400/", a.RedirectURI)
	}
	if a.Tenant != "contoso" {
		t.Errorf("Tenant = %s", a.Tenant)
	}
}

func TestUniqueState(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a := newAttempt(t)
		if seen[a.State] {
			t.Fatalf("duplicate state %s", a.State)
		}
		seen[a.State] = true
	}
}

func TestHappyPath(t *testing.T) {
	a := newAttempt(t)

	for _, p := range []Phase{PhasePortChecked, PhaseListening, PhaseCallbackReceived} {
		if err := a.Advance(p); err != nil {
			t.Fatalf("Advance(%s) failed: %v", p, err)
		}
	}

	if err := a.SetCode("ABC"); err != nil {
		t.Fatalf("SetCode failed: %v", err)
	}

	for _, p := range []Phase{PhaseExchanging, PhaseSucceeded} {
		if err := a.Advance(p); err != nil {
			t.Fatalf("Advance(%s) failed: %v", p, err)
		}
	}

	if a.Code() != "ABC" {
		t.Errorf("Code = %s, want ABC", a.Code())
	}

	want := []Phase{PhaseIdle, PhasePortChecked, PhaseListening, PhaseCallbackReceived, PhaseExchanging, PhaseSucceeded}
	got := a.History()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []Phase
		to    Phase
	}{
		{name: "skip port check", to: PhaseListening},
		{name: "exchange without callback", setup: []Phase{PhasePortChecked, PhaseListening}, to: PhaseExchanging},
		{name: "succeed from listening", setup: []Phase{PhasePortChecked, PhaseListening}, to: PhaseSucceeded},
		{name: "back to idle", setup: []Phase{PhasePortChecked}, to: PhaseIdle},
		{name: "leave terminal", setup: []Phase{PhaseFailed}, to: PhasePortChecked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAttempt(t)
			for _, p := range tt.setup {
				if err := a.Advance(p); err != nil {
					t.Fatalf("setup Advance(%s): %v", p, err)
				}
			}
			before := a.Phase()

			if err := a.Advance(tt.to); err == nil {
				t.Errorf("expected error for %s -> %s", before, tt.to)
			}
			if a.Phase() != before {
				t.Errorf("phase changed to %s after rejected transition", a.Phase())
			}
		})
	}
}

func TestFailClearsCode(t *testing.T) {
	a := newAttempt(t)
	_ = a.Advance(PhasePortChecked)
	_ = a.Advance(PhaseListening)
	_ = a.Advance(PhaseCallbackReceived)
	_ = a.SetCode("ABC")

	cause := errors.New("exchange rejected")
	if err := a.Fail(cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if a.Phase() != PhaseFailed {
		t.Errorf("phase = %s, want Failed", a.Phase())
	}
	if !errors.Is(a.Err(), cause) {
		t.Errorf("Err = %v, want %v", a.Err(), cause)
	}
	if a.Code() != "" {
		t.Error("code must not survive a failure")
	}

	if err := a.Fail(cause); err == nil {
		t.Error("expected error when failing a terminal attempt")
	}
}

func TestSetCodeOutsideCallback(t *testing.T) {
	a := newAttempt(t)
	if err := a.SetCode("ABC"); err == nil {
		t.Error("expected error storing a code in Idle")
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseCallbackReceived.String() != "CallbackReceived" {
		t.Errorf("String = %s", PhaseCallbackReceived.String())
	}
	if Phase(42).String() != "Unknown" {
		t.Errorf("String = %s", Phase(42).String())
	}
	if !PhaseFailed.Terminal() || PhaseExchanging.Terminal() {
		t.Error("Terminal mismatch")
	}
}
