package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the reconnect delay for attempt N (1-based).
// The first attempt always waits InitialDelay.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Backoff counts failed dial attempts against a BackoffConfig. The zero
// MaxAttempts means retry forever.
type Backoff struct {
	Config      BackoffConfig
	MaxAttempts int

	rng     *rand.Rand
	attempt int
}

func NewBackoff(cfg BackoffConfig, maxAttempts int, rng *rand.Rand) *Backoff {
	return &Backoff{Config: cfg, MaxAttempts: maxAttempts, rng: rng}
}

// Next records a failure and returns how long to wait before retrying.
// ok is false once MaxAttempts failures have been recorded.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.attempt++
	if b.MaxAttempts > 0 && b.attempt >= b.MaxAttempts {
		return 0, false
	}
	return NextBackoffDelay(b.Config, b.attempt, b.rng), true
}

func (b *Backoff) Attempts() int { return b.attempt }

func (b *Backoff) Reset() { b.attempt = 0 }
