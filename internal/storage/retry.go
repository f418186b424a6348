package storage

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hal2001/kubeface/internal/apperrors"
)

// Retry defaults: a failed call is retried up to MaxRetries times, sleeping
// base^n seconds before the n-th retry.
const (
	DefaultMaxRetries  = 12
	DefaultBackoffBase = 2.0
)

// Retrier is the retry policy applied uniformly at the storage-client
// boundary. Every failed operation is retried whole, never resumed
// partway. Exhausting the budget yields ErrStorageUnavailable wrapping the
// last cause.
type Retrier struct {
	MaxRetries uint64        // retries after the first failure; 0 means DefaultMaxRetries
	Base       float64       // backoff base in seconds; 0 means DefaultBackoffBase
	Timer      backoff.Timer // nil means real time; tests inject a fake
	Metrics    MetricsRecorder
}

// MetricsRecorder is an optional interface for recording storage metrics.
type MetricsRecorder interface {
	RecordStorageOp(ctx context.Context, op string, durationSeconds float64, success bool)
	RecordStorageRetry(ctx context.Context, op string)
}

func (r *Retrier) maxRetries() uint64 {
	if r == nil || r.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

func (r *Retrier) base() float64 {
	if r == nil || r.Base == 0 {
		return DefaultBackoffBase
	}
	return r.Base
}

// Do runs fn, retrying on any failure with exponential sleeps until the
// budget is spent. Each failure is logged before the sleep.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	operation := func() error {
		attempts++
		return fn()
	}
	notify := func(err error, sleep time.Duration) {
		slog.Warn("Storage call failed, will retry",
			"op", op,
			"attempt", attempts,
			"maxRetries", r.maxRetries(),
			"sleep", sleep,
			"error", err,
		)
		if r != nil && r.Metrics != nil {
			r.Metrics.RecordStorageRetry(ctx, op)
		}
	}

	var timer backoff.Timer
	if r != nil {
		timer = r.Timer
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&powerBackOff{base: r.base()}, r.maxRetries()), ctx)

	start := time.Now()
	err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer)
	if r != nil && r.Metrics != nil {
		r.Metrics.RecordStorageOp(ctx, op, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		// A caller abort is not a store failure; report it as-is.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return apperrors.StorageUnavailable(op, attempts, err)
	}
	return nil
}

// powerBackOff sleeps base^n seconds before the n-th retry, matching the
// store retry policy documented in the package comment. There is no cap:
// the retry count bound is the budget.
type powerBackOff struct {
	base    float64
	attempt int
}

func (b *powerBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(math.Pow(b.base, float64(b.attempt)) * float64(time.Second))
}

func (b *powerBackOff) Reset() {
	b.attempt = 0
}
