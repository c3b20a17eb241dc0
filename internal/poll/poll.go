// Package poll provides the retry-with-delay primitive behind every
// readiness gate.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the attempt budget is exhausted without the
// predicate reporting success.
var ErrTimeout = errors.New("attempts exhausted")

// Func is a single readiness probe. It returns done=true on success. A
// non-nil error is a hard failure and stops polling immediately; "not ready
// yet" is (false, nil).
type Func func(ctx context.Context, attempt int) (done bool, err error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poller runs probes sequentially. The zero value sleeps for real.
type Poller struct {
	Sleep SleepFunc
}

// Until invokes fn up to maxAttempts times, sleeping delay between attempts,
// and returns the number of invocations made. maxAttempts <= 0 means no
// attempt limit; fn must then bound the wait itself by returning an error.
// There is no sleep after the final attempt.
func (p Poller) Until(ctx context.Context, maxAttempts int, delay time.Duration, fn Func) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		done, err := fn(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if maxAttempts > 0 && attempt == maxAttempts {
			return attempt, ErrTimeout
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
	return 0, ErrTimeout
}

// Until polls with real sleeps.
func Until(ctx context.Context, maxAttempts int, delay time.Duration, fn Func) (int, error) {
	return Poller{}.Until(ctx, maxAttempts, delay, fn)
}
