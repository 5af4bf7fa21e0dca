package broker

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// ErrorClass drives the retry decision for an external call.
type ErrorClass int

const (
	// Fatal errors surface immediately.
	Fatal ErrorClass = iota
	// Retryable errors back off and try again up to the attempt cap.
	Retryable
	// Auth errors trigger one token refresh per burst before retrying.
	Auth
)

// Policy is the reusable retry policy shared by all external broker calls:
// capped attempts, exponential backoff with jitter, and a classifier that
// decides whether an error is retryable or auth-related.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterFrac  float64
	Classify    func(error) ErrorClass
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << uint(attempt)
	if p.JitterFrac > 0 {
		jitter := float64(d) * p.JitterFrac * rand.Float64()
		d += time.Duration(jitter)
	}
	return d
}

// Do runs fn under the policy. refresh, when non-nil, is invoked at most once
// per burst on an auth-classified error before the next attempt.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, refresh func(context.Context) error) error {
	var lastErr error
	refreshed := false
	for attempt := 0; attempt < p.attempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		class := Retryable
		if p.Classify != nil {
			class = p.Classify(lastErr)
		}
		switch class {
		case Fatal:
			return lastErr
		case Auth:
			if refresh != nil && !refreshed {
				refreshed = true
				if err := refresh(ctx); err != nil {
					// Retrying with stale credentials cannot succeed.
					return fmt.Errorf("broker: token refresh failed: %w", err)
				}
			}
		}
	}
	return lastErr
}
