package parallelism

import (
	"errors"
	"testing"
	"time"
)

var errProbe = errors.New("probe failed")

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute, 1)
	b.now = func() time.Time { return now }

	fail := func() error { return errProbe }
	ok := func() error { return nil }

	if err := b.Execute(fail); !errors.Is(err, errProbe) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatal("one failure should not open the breaker")
	}
	_ = b.Execute(fail)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) || called {
		t.Error("open breaker must skip the call")
	}

	now = now.Add(time.Minute)
	if err := b.Execute(ok); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after a successful trial, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second, 2)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errProbe })
	now = now.Add(time.Second)

	_ = b.Execute(func() error { return nil })
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open with 1 of 2 successes, got %s", b.State())
	}
	_ = b.Execute(func() error { return errProbe })
	if b.State() != BreakerOpen {
		t.Errorf("a half-open failure should reopen, got %s", b.State())
	}

	b.Reset()
	if b.State() != BreakerClosed {
		t.Error("Reset should close the breaker")
	}
}

func TestBreakerStateString(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
