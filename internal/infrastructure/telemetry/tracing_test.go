package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"gorm.io/driver/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// setupTestTracer installs an in-memory span recorder as the global tracer provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartServiceSpan(context.Background(), "ledger", "post",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, "t-1"))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentRef, "INV-1",
		telemetry.SpanAttrEntryCount, 4,
		42, "ignored non-string key",
		"dangling",
	)
	telemetry.AddEvent(span, "entries_saved", telemetry.SpanAttrEntryCount, 4)
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.post", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "t-1", attrs["tenant_id"])
	assert.Equal(t, "INV-1", attrs["document_ref"])
	assert.Equal(t, "4", attrs["entry_count"])
	assert.Len(t, spans[0].Events(), 1)
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ledger.reverse")
	telemetry.RecordError(span, errors.New("nothing to reverse"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "nothing to reverse", spans[0].Status().Description)

	t.Run("nil error and nil span are ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			telemetry.RecordError(nil, errors.New("x"))
			telemetry.RecordError(span, nil)
			telemetry.SetOK(nil)
			telemetry.SetAttribute(nil, "k", "v")
		})
	})
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))
}

func TestProviders_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "ledger"}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("ledger"))
	assert.NoError(t, tp.Shutdown(ctx))

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ServiceName: "ledger"}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestDBTracingPlugin(t *testing.T) {
	sr := setupTestTracer(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := telemetry.DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"
	plugin := telemetry.NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.RegisterOtelGorm(db))

	type probe struct {
		ID   int
		Name string
	}
	require.NoError(t, db.AutoMigrate(&probe{}))
	require.NoError(t, db.WithContext(context.Background()).Create(&probe{ID: 1, Name: "a"}).Error)

	assert.NotEmpty(t, sr.Ended())

	t.Run("disabled plugin registers nothing", func(t *testing.T) {
		db2, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		require.NoError(t, err)
		require.NoError(t, telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), zap.NewNop()).RegisterOtelGorm(db2))
	})
}
