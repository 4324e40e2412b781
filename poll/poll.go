// Package poll provides the deterministic polling primitive behind every
// explicit wait: evaluate a condition on a fixed interval until it holds or
// a deadline passes.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/tugboatci/tugboat/errext"
)

// DefaultInterval is the fixed pause between condition checks.
const DefaultInterval = 100 * time.Millisecond

// Condition reports whether the awaited state has been reached. An error
// return counts as "not yet satisfied": failures while polling are expected
// transient states (element not attached yet, page mid-navigation).
type Condition func(ctx context.Context) (bool, error)

// Options configure one Poll call.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration // defaults to DefaultInterval
}

// TimeoutError is returned once elapsed time exceeds the timeout.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not satisfied after %s (timeout %s)", e.Elapsed, e.Timeout)
}

// ErrorDetail implements errext.Detailer.
func (e *TimeoutError) ErrorDetail() errext.Detail {
	return errext.Detail{
		Kind:    "Timeout",
		Message: e.Error(),
		Fields: map[string]any{
			"timeout": e.Timeout.String(),
			"elapsed": e.Elapsed.String(),
		},
	}
}

// Poll evaluates cond every interval until it returns true, the timeout
// elapses, or ctx is canceled. The deadline is checked before each
// evaluation, so an expired timeout wins over a condition that might just
// have become true.
func Poll(ctx context.Context, cond Condition, opts Options) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := time.Now()

	for {
		if elapsed := time.Since(start); elapsed > opts.Timeout {
			return &TimeoutError{Timeout: opts.Timeout, Elapsed: elapsed}
		}

		ok, err := cond(ctx)
		if ok && err == nil {
			return nil
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
