package clients

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	apperr "kingoacquire/internal/errors"
)

// WithBreaker wraps call with a circuit breaker named name: after
// consecutiveFailures trips it open, calls fail fast for a cooldown window
// instead of hammering an external collaborator that is already down.
// Returned errors are classified retryable_transient so the broker's normal
// backoff applies whether the breaker is open or the call itself failed.
func WithBreaker[T any](name string, call func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return func(ctx context.Context) (T, error) {
		result, err := cb.Execute(func() (T, error) { return call(ctx) })
		if err != nil {
			var zero T
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return zero, apperr.NewWithMessage("circuitbreaker."+name, apperr.KindRetryableTransient, err, name+" is temporarily unavailable")
			}
			return zero, err
		}
		return result, nil
	}
}
