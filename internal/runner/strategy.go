package runner

import (
	"math"
	"time"
)

// RedriveStrategy decides when a dead job may be returned to its queue.
type RedriveStrategy interface {
	// GetDelay returns the wait before redrive attempt n (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRedrive checks if a dead job is still worth redriving.
	ShouldRedrive(attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy. The executor
// itself backs off linearly between attempts; redriving an already
// dead-lettered job is a rarer event and spaces out exponentially.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRedriveBackoff returns sensible redrive defaults.
// 30s, 1m, 2m, 4m, 8m (Max 10m)
func DefaultRedriveBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 30 * time.Second,
		MaxDelay:     10 * time.Minute,
		MaxAttempts:  5,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRedrive checks the redrive attempt count against the cap.
func (s *ExponentialBackoff) ShouldRedrive(attempt int) bool {
	return attempt < s.MaxAttempts
}
