// Package poll runs a check repeatedly at a fixed interval until it
// reports completion or a deadline passes. It backs every wait loop in
// localota: the firmware download wait, the post-reboot status wait and
// the Wi-Fi association watcher.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline matches any *DeadlineError via errors.Is.
var ErrDeadline = errors.New("poll deadline exceeded")

// Policy describes one polling loop.
type Policy struct {
	// Interval is the pause between attempts.
	Interval time.Duration
	// Deadline bounds the whole loop. Zero means only the parent context bounds it.
	Deadline time.Duration
	// Retryable reports whether an attempt error should be swallowed and
	// polled again. A nil Retryable treats every error as fatal.
	Retryable func(error) bool
	// OnRetry, when set, is called with each swallowed error.
	OnRetry func(attempt int, err error)
}

// DeadlineError is returned when the deadline passes before the check
// completes.
type DeadlineError struct {
	Deadline time.Duration
	Attempts int
	// LastErr is the last swallowed error, if any.
	LastErr error
}

func (e *DeadlineError) Error() string {
	msg := fmt.Sprintf("gave up after %s (%d attempts)", e.Deadline, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": last error: %v", e.LastErr)
	}
	return msg
}

func (e *DeadlineError) Unwrap() error {
	return e.LastErr
}

func (e *DeadlineError) Is(target error) bool {
	return target == ErrDeadline
}

// Func is one attempt. It returns done=true when the wait is over.
// The context it receives carries the loop deadline.
type Func func(ctx context.Context) (done bool, err error)

// Until calls fn immediately and then every Interval until fn reports done,
// fn returns a non-retryable error, or the deadline passes. Cancellation of
// the parent context is returned as ctx.Err().
func Until(ctx context.Context, p Policy, fn Func) error {
	loopCtx := ctx
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	var (
		attempts int
		lastErr  error
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		attempts++
		done, err := fn(loopCtx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && (p.Retryable == nil || !p.Retryable(err)):
			if loopCtx.Err() != nil && ctx.Err() == nil {
				// The attempt failed because the loop deadline cut it short.
				return &DeadlineError{Deadline: p.Deadline, Attempts: attempts, LastErr: err}
			}
			return err
		case err != nil:
			lastErr = err
			if p.OnRetry != nil {
				p.OnRetry(attempts, err)
			}
		}

		timer.Reset(p.Interval)
		select {
		case <-loopCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &DeadlineError{Deadline: p.Deadline, Attempts: attempts, LastErr: lastErr}
		case <-timer.C:
		}
	}
}
