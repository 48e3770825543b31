package storage

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls retry behavior for contended writes.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the write contention profile of a single
// classification run racing with interactive API traffic.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// IsLockError reports whether an error indicates lock contention worth
// retrying. Anything else (constraint violations, bad SQL) fails fast.
func IsLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock timeout") ||
		strings.Contains(msg, "could not obtain lock")
}

// WithRetry runs op, retrying lock-contention errors with jittered
// exponential backoff. Other errors are returned immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	backoff := retry.NewExponential(policy.BaseDelay)
	backoff = retry.WithJitter(policy.BaseDelay/2, backoff)
	backoff = retry.WithCappedDuration(policy.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(policy.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if IsLockError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
