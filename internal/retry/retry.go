// Package retry holds the failure policy for upstream reads: bounded retries
// with backoff for reads the pipeline cannot do without, and a
// default-on-failure combinator for optional ones.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// cryptoInt64n returns a random int64 in [0, n) using crypto/rand.
func cryptoInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1
	return int64(v % uint64(n)) //nolint:gosec // n>0, v%n < n, safe
}

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times with exponential backoff and jitter.
// It stops early if fn succeeds, returns a *PermanentError, or ctx is done.
// baseDelay is doubled on each retry with +-25% jitter.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		jitter := delay / 4
		sleep := delay - jitter + time.Duration(cryptoInt64n(int64(2*jitter+1)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
	}

	return err
}

// WithDefault runs fn under its own timeout and returns def if fn fails for
// any reason, a timeout included. The error is still returned so callers can
// log or count it; the value is always safe to use. A panic inside fn is
// treated as a failure.
func WithDefault[T any](ctx context.Context, timeout time.Duration, def T, fn func(ctx context.Context) (T, error)) (v T, err error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			v, err = def, &PanicError{Value: r}
		}
	}()

	v, err = fn(callCtx)
	if err != nil {
		return def, err
	}
	return v, nil
}

// PanicError reports a panic recovered by WithDefault.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("retry: recovered panic: %v", e.Value) }
