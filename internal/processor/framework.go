package processor

import (
	"context"
	"encoding/json"
	"time"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/logger"
)

// Wrap adapts a typed processor function into a broker.Handler: it
// unmarshals the payload, measures duration, logs with a component tag, and
// marshals the typed result. The typed function's own error already
// carries the apperr.Kind the broker needs to decide retry vs terminal —
// Wrap never reclassifies it.
func Wrap[P any, R any](component string, fn func(ctx context.Context, payload P) (R, error)) broker.Handler {
	return func(ctx context.Context, jobID, payload string) (string, error) {
		var p P
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return "", apperr.NewWithMessage(component, apperr.KindTerminalConfig, err, "malformed job payload")
		}

		start := time.Now()
		log := logger.WithJob(jobID, component)

		result, err := fn(ctx, p)
		duration := time.Since(start)

		if err != nil {
			log.Error().Err(err).Dur("duration", duration).Msg("processor failed")
			return "", err
		}
		log.Debug().Dur("duration", duration).Msg("processor completed")

		body, merr := json.Marshal(result)
		if merr != nil {
			return "", apperr.WrapAs(component, apperr.KindRetryableTransient, merr)
		}
		return string(body), nil
	}
}
