// Package throttle locks out clients after repeated failed logins.
package throttle

import (
	"context"
	"time"
)

// Policy describes when a client gets locked out: MaxAttempts failures
// within Window lock the key for Lock.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Lock        time.Duration
}

// Limiter tracks failed attempts per key (typically a client IP).
type Limiter interface {
	// Check returns how long key remains locked. Zero means the key may try.
	Check(ctx context.Context, key string) (time.Duration, error)
	// Fail records a failed attempt and returns the attempts left before the
	// key is locked.
	Fail(ctx context.Context, key string) (int, error)
	// Reset forgets the key, typically after a successful login.
	Reset(ctx context.Context, key string) error
}

func remaining(p Policy, count int) int {
	if left := p.MaxAttempts - count; left > 0 {
		return left
	}
	return 0
}
