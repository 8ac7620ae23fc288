// Package util provides small helpers shared across the storage layer.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DatabaseRetryOptions returns retry options for transient database lock
// errors: 3 attempts with exponential backoff starting at 100ms and capped
// at 300ms, so the waits between attempts are 100ms and then 200ms.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.Context(ctx),
	}
}

// Retry executes fn with the given retry options. If fn never succeeds, it
// returns a retry.Error listing the error of every attempt made (retrying
// stops early when an error fails the RetryIf check).
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	return retry.Do(fn, opts...)
}

// IsDatabaseLocked reports whether err indicates a database lock conflict.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}
