// Package retry provides bounded retry with exponential back-off for backend requests.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/objectfs/storagemgr/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int `yaml:"max_request_attempts"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64 `yaml:"multiplier"`

	// Jitter adds ±20% randomness to each delay
	Jitter bool `yaml:"jitter"`

	// ShouldRetry classifies errors. Defaults to errors.IsRetryable.
	ShouldRetry func(err error) bool `yaml:"-"`

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultConfig returns the back-off used for object store requests:
// 3 attempts, 200ms doubling up to 5s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration
func New(config Config) *Retryer {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = errors.IsRetryable
	}

	return &Retryer{config: config}
}

// MaxAttempts returns the attempt budget.
func (r *Retryer) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do executes fn with retry logic and context support. Non-retryable errors are
// returned as is; after the budget is spent the last error is returned wrapped.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return canceled(attempt-1, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.ShouldRetry(err) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)

			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return canceled(attempt, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return exhausted(r.config.MaxAttempts, lastErr)
}

// exhausted wraps the last failure as RETRY_EXHAUSTED, carrying over its
// request context. The inner code stays reachable through errors.HasCode.
func exhausted(attempts int, last error) error {
	err := errors.Newf(errors.ErrCodeRetryExhausted, "max retry attempts (%d) exceeded", attempts).
		WithCause(last)
	var se *errors.StorageError
	if stderrors.As(last, &se) {
		err.Path, err.Bucket, err.Operation, err.Component = se.Path, se.Bucket, se.Operation, se.Component
	}
	return err
}

func canceled(attempts int, cause error) error {
	return errors.Newf(errors.ErrCodeOperationCanceled, "operation canceled after %d attempts", attempts).
		WithCause(cause)
}

// calculateDelay calculates the delay for the next retry attempt
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	// initialDelay * multiplier^(attempt-1)
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}

// WithOnRetry returns a new Retryer with a retry callback
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}
