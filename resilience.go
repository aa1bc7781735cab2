package livevoice

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior for failed connection attempts.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Set to 0 to disable retries.
	MaxRetries int

	// BaseDelay is the initial delay between retries.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Multiplier is used for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Jitter randomizes each delay by up to this fraction. Default: 0.1
	Jitter float64

	// RetryableErrors decides whether an error should trigger a retry.
	// If nil, IsRetryable is used.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// IsRetryable reports whether a connect failure may succeed on a later
// attempt. Configuration errors and rejected credentials never do.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, context.Canceled) {
		return false
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return !ce.IsCredentialRejected()
	}
	var se *SendError
	return errors.As(err, &se)
}

func (rc RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = rc.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}
	b.Multiplier = rc.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2.0
	}
	b.RandomizationFactor = rc.Jitter
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(rc.MaxRetries, 0))), ctx)
}

// RetryableOperation represents an operation that can be retried.
type RetryableOperation func() error

// WithRetry runs op until it succeeds, returns a non-retryable error, the
// retry budget is spent, or ctx is done. The last error is returned as is.
func WithRetry(ctx context.Context, rc RetryConfig, log *Logger, op RetryableOperation) error {
	retryable := rc.RetryableErrors
	if retryable == nil {
		retryable = IsRetryable
	}
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, rc.backOff(ctx), func(err error, next time.Duration) {
		log.Warn("retrying", map[string]any{"attempt": attempt, "err": err, "delay": next.String()})
	})
	return err
}

// OpenWithRetry calls Open under rc.
func OpenWithRetry(ctx context.Context, cfg Config, rc RetryConfig) (*Conn, error) {
	var conn *Conn
	err := WithRetry(ctx, rc, cfg.Logger, func() error {
		c, err := Open(ctx, cfg)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
