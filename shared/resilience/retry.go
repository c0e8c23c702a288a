package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
)

// RetryPolicy bounds a call with a per-attempt timeout and a number of retries.
type RetryPolicy struct {
	MaxRetries     int
	AttemptTimeout time.Duration
	// BaseDelay of zero retries immediately.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// OnRetry is invoked before each retry with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (4xx answers, business rejections).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a breaker rejection.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrCircuitOpen)
}

// Run calls fn until it succeeds, returns a permanent error or retries are exhausted.
// It returns how many retries were consumed.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	_, retries, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return retries, err
}

// Call is Run for functions producing a value.
func Call[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	attempts := 0

	operation := func() (T, error) {
		attempts++

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()

		res, err := fn(attemptCtx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxRetries) + 1),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.OnRetry(attempts, err, wait)
		}))
	}

	res, err := backoff.Retry(ctx, operation, opts...)
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	return res, retries, err
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.BaseDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = 10 * p.BaseDelay
	}
	return b
}
