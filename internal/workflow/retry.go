package workflow

import (
	"math/rand/v2"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

const (
	defaultBaseDelay   = 60 * time.Second
	defaultMaxDelay    = 30 * time.Minute
	defaultJitterRatio = 0.2
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait first. Attempts are 0-indexed.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRatio float64
	// Jitter returns a value in [0, 1). Nil uses math/rand.
	Jitter func() float64
}

// NewRetryPolicy builds a policy from the retry config section.
func NewRetryPolicy(cfg *config.Config) RetryPolicy {
	p := RetryPolicy{
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		JitterRatio: cfg.Retry.JitterRatio,
	}
	return p.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.JitterRatio < 0 {
		p.JitterRatio = defaultJitterRatio
	}
	return p
}

// ShouldRetry reports whether attempt may be followed by another. Permanent
// errors never retry; everything else does until the last attempt.
func (p RetryPolicy) ShouldRetry(attempt, maxAttempts int, err error) bool {
	if err == nil || services.IsPermanent(err) {
		return false
	}
	return attempt < maxAttempts-1
}

// BackoffDelay returns BaseDelay * 2^attempt plus up to JitterRatio of that,
// capped at MaxDelay.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	delay += time.Duration(float64(delay) * p.JitterRatio * jitter())
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
