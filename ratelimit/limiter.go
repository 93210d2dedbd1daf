// Package ratelimit counts attempts per key over a time window. Redis backs
// the limiter when several instances share traffic; Memory covers single
// instance deployments and tests.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited is reported for attempts past the limit.
var ErrLimited = errors.New("too many attempts, try again later")

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// Err is ErrLimited for a rejected attempt and nil otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return ErrLimited
}

// Limiter records an attempt for key and reports whether it is within the
// limit. After Limit attempts inside one window the next is rejected until
// the window has elapsed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Options struct {
	Attempts int
	Window   time.Duration
	Prefix   string
}
