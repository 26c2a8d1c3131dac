// Package requestctx carries request-scoped identifiers below the HTTP layer
// so domain services can log with the same correlation fields as handlers.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithActor records who is acting. Set once authentication succeeds.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func ActorID(ctx context.Context) string {
	value, _ := ctx.Value(actorIDKey).(string)
	return value
}

// Logger returns the global zap logger annotated with whatever identifiers
// ctx carries.
func Logger(ctx context.Context) *zap.Logger {
	log := zap.L()
	if id := RequestID(ctx); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	if id := ActorID(ctx); id != "" {
		log = log.With(zap.String("actor_id", id))
	}
	return log
}
