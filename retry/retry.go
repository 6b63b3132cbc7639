// Package retry provides the bounded exponential-backoff retry helper
// used by the fetch agents (spec §4.7), grounded on the teacher's
// retryFunc wrapper in
// datasync/chaindatafetcher/chaindata_fetcher.go, which retries a
// HandleChainEventFn a fixed number of times with a fixed sleep
// between attempts. The original Python teacher (data_fetcher.py) used
// tenacity's @retry(stop_after_attempt, wait_exponential); this package
// gives that same shape in idiomatic Go.
package retry

import (
	"context"
	"time"

	"github.com/venantvr/rsi-correlation/log"
)

var logger = log.NewModuleLogger("retry")

// Policy configures how many attempts to make and how long to wait
// between them.
type Policy struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// RetryOn reports whether err is worth retrying. Nil (the zero
	// value) retries every error, matching the teacher's own retryFunc,
	// which never distinguishes error kinds either.
	RetryOn func(err error) bool
}

// DefaultPolicy matches the teacher's fixed retry count with a
// doubling backoff capped at a few seconds, adequate for the
// exchange-API fetch calls of spec §4.7.
var DefaultPolicy = Policy{
	Attempts:   3,
	MinBackoff: 200 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
}

// Do invokes fn up to policy.Attempts times, sleeping with doubling
// backoff between failures. It returns the last error if every
// attempt fails, or nil as soon as one attempt succeeds. The context
// is checked between attempts so a cancelled analysis session does
// not keep retrying.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	backoff := policy.MinBackoff
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if policy.RetryOn != nil && !policy.RetryOn(lastErr) {
			return lastErr
		}
		logger.Warn("attempt failed", "attempt", attempt, "of", policy.Attempts, "err", lastErr)
		if attempt == policy.Attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return lastErr
}
