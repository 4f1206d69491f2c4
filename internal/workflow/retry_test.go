package workflow_test

import (
	"errors"
	"testing"
	"time"

	"storyforge/internal/services"
	"storyforge/internal/workflow"
)

func TestBackoffDelayIncreases(t *testing.T) {
	for _, jitter := range []float64{0, 0.5, 0.999} {
		p := workflow.RetryPolicy{
			BaseDelay:   60 * time.Second,
			MaxDelay:    30 * time.Minute,
			JitterRatio: 0.2,
			Jitter:      func() float64 { return jitter },
		}
		d0, d1, d2 := p.BackoffDelay(0), p.BackoffDelay(1), p.BackoffDelay(2)
		if !(d0 < d1 && d1 < d2) {
			t.Fatalf("jitter %v: delays not increasing: %v %v %v", jitter, d0, d1, d2)
		}
		if d0 < 60*time.Second || d0 > 72*time.Second {
			t.Fatalf("jitter %v: first delay %v outside [60s, 72s]", jitter, d0)
		}
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	p := workflow.RetryPolicy{
		BaseDelay:   60 * time.Second,
		MaxDelay:    30 * time.Minute,
		JitterRatio: 0.2,
		Jitter:      func() float64 { return 0.9 },
	}
	for _, attempt := range []int{5, 10, 64} {
		if got := p.BackoffDelay(attempt); got != 30*time.Minute {
			t.Fatalf("BackoffDelay(%d) = %v, want cap", attempt, got)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	p := workflow.RetryPolicy{}
	transient := errors.New("connection reset")
	if !p.ShouldRetry(0, 3, transient) || !p.ShouldRetry(1, 3, transient) {
		t.Fatal("unclassified errors should retry before the last attempt")
	}
	if p.ShouldRetry(2, 3, transient) || p.ShouldRetry(5, 3, transient) {
		t.Fatal("no retry once attempt >= maxAttempts-1")
	}
	permanent := services.Wrap(services.ErrValidation, "expand", "parse", "bad payload", nil)
	if p.ShouldRetry(0, 3, permanent) {
		t.Fatal("permanent errors never retry")
	}
	if p.ShouldRetry(0, 3, &workflow.TerminalError{JobID: "j", Reason: "missing"}) {
		t.Fatal("terminal errors never retry")
	}
	if p.ShouldRetry(0, 3, nil) {
		t.Fatal("nil error is not retried")
	}
}
