// Package retry is the single bounded-retry abstraction used for every
// transient network failure in the pipeline. Retries never apply to
// configuration, integrity, signing, or identity errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxJitter   = 100 * time.Millisecond

	// maxResetWait caps how long a rate-limit reset is honored before
	// the attempt is abandoned as exhausted.
	maxResetWait = 2 * time.Minute
)

// Policy bounds a retry loop: a fixed attempt ceiling, exponential
// backoff from BaseDelay, and capped jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// RateLimitError reports a host rate-limit response. When Reset is set
// the retry loop waits until reset instead of backing off blindly.
type RateLimitError struct {
	Reset time.Time
	Err   error
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return fmt.Sprintf("rate limited until %s: %v", e.Reset.UTC().Format(time.RFC3339), e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Do runs operation until it succeeds, fails non-transiently, or the
// attempt budget is exhausted. The last error is returned unmodified so
// its classification survives for the caller.
func (p Policy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxJitter := p.MaxJitter
	if maxJitter <= 0 {
		maxJitter = defaultMaxJitter
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Transient(err) || attempt == attempts {
			break
		}
		sleepFor := p.delayFor(err, attempt, baseDelay, maxJitter, now())
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}

// Transient reports whether an error is worth retrying: rate limits and
// errors classified network_transient or explicitly retryable.
func Transient(err error) bool {
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryNetworkTransient, coreerrors.CategoryRateLimited:
		return true
	}
	return coreerrors.RetryableOf(err)
}

func (p Policy) delayFor(err error, attempt int, baseDelay, maxJitter time.Duration, now time.Time) time.Duration {
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) && !rateLimited.Reset.IsZero() {
		wait := rateLimited.Reset.Sub(now)
		if wait > maxResetWait {
			wait = maxResetWait
		}
		if wait > 0 {
			return wait
		}
	}
	backoff := baseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(maxJitter) + 1)) // #nosec G404 -- jitter does not need crypto randomness.
	return backoff + jitter
}
