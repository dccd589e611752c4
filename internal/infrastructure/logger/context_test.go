package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fieldMap(entry observer.LoggedEntry) map[string]string {
	out := make(map[string]string)
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	base := zap.NewNop()
	ctx := WithContext(context.Background(), base)
	assert.Same(t, base, FromContext(ctx))
}

func TestScopeHelpers(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, _ := WithTenantID(context.Background(), base, "tenant-1")
	ctx, _ = WithActorID(ctx, FromContext(ctx), "actor-9")
	ctx, log := WithDocumentRef(ctx, FromContext(ctx), "INV-1")

	assert.Equal(t, "tenant-1", GetTenantID(ctx))
	assert.Equal(t, "actor-9", GetActorID(ctx))
	assert.Equal(t, "INV-1", GetDocumentRef(ctx))

	log.Info("posting")
	require.Equal(t, 1, recorded.Len())
	fields := fieldMap(recorded.All()[0])
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.Equal(t, "actor-9", fields["actor_id"])
	assert.Equal(t, "INV-1", fields["document_ref"])
}

func TestContextLogger(t *testing.T) {
	t.Run("adds trace and scope fields", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))
		ctx, _ = WithDocumentRef(ctx, zap.NewNop(), "INV-7")
		ctx = WithContext(ctx, zap.New(core))

		L(ctx).With(zap.String("method", "post")).Warn("posting failed")

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		fields := fieldMap(entry)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
		assert.Equal(t, "INV-7", fields["document_ref"])
		assert.Equal(t, "post", fields["method"])
	})

	t.Run("explicit logger without context values", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		cl := WithLogger(context.Background(), zap.New(core))
		cl.Debug("d")
		cl.Info("i")
		cl.Error("e")
		assert.Equal(t, 3, recorded.Len())
		assert.Empty(t, fieldMap(recorded.All()[0]))
		assert.NotNil(t, cl.Zap())
	})

	t.Run("nil logger is safe", func(t *testing.T) {
		assert.NotPanics(t, func() {
			WithLogger(context.Background(), nil).With(zap.Int("n", 1)).Info("ignored")
		})
	})
}
