package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerCarriesIdentifiers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctx := WithActor(WithRequestID(context.Background(), "req-1"), "e-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "e-1", ActorID(ctx))

	Logger(ctx).Info("decided")
	Logger(context.Background()).Info("bare")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "e-1", fields["actor_id"])
		assert.Empty(t, entries[1].ContextMap())
	}
}
