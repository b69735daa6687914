// Package retry implements bounded retries with doubling backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ErrExhausted is returned, wrapping the last failure, when all attempts
// of a Policy have failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy describes how many times an operation is attempted and how long
// to wait between attempts. The wait doubles after every failure and is
// capped at MaxBackoff if MaxBackoff > 0.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// backOff returns the schedule of waits between the attempts of p
func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b,
		uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds, the attempts of p are used up, or ctx
// is done. The attempt number, starting at 0, is passed to fn. When
// attempts run out, the returned error wraps both ErrExhausted and the
// last error returned by fn.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context,
	attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	err := backoff.Retry(func() error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		err := fn(ctx, attempt)
		attempt++
		return err
	}, p.backOff(ctx, attempts))

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	default:
		return &exhaustedError{attempts: attempt, last: err}
	}
}

type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return errors.Wrapf(e.last, "retry: gave up after %d attempts",
		e.attempts).Error()
}

// Is reports ErrExhausted as matching so callers can use errors.Is
func (e *exhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Unwrap returns the last error returned by the retried operation
func (e *exhaustedError) Unwrap() error {
	return e.last
}
