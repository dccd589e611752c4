package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Options(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)
	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	warn, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
}

func TestGormLogger_Messages(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)

	gl.Info(context.Background(), "suppressed %s", "below level")
	gl.Warn(context.Background(), "lock wait %d ms", 42)
	gl.Error(context.Background(), "connection lost")

	require.Equal(t, 2, recorded.Len())
	assert.Equal(t, "lock wait 42 ms", recorded.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, recorded.All()[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	const insert = "INSERT INTO ledger_entries (...) VALUES (...)"

	t.Run("error", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Error)
		gl.Trace(context.Background(), time.Now(), statement(insert, 0), errors.New("duplicate key"))
		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "sql error", recorded.All()[0].Message)
	})

	t.Run("record not found is ignored by default", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Error)
		gl.Trace(context.Background(), time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())
	})

	t.Run("slow statement", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(context.Background(), time.Now().Add(-time.Second), statement(insert, 4), nil)
		require.Equal(t, 1, recorded.Len())
		assert.Contains(t, recorded.All()[0].Message, "slow sql")
	})

	t.Run("statement carries document scope", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info)
		ctx, _ := WithTenantID(context.Background(), zap.NewNop(), "tenant-1")
		ctx, _ = WithDocumentRef(ctx, zap.NewNop(), "INV-1")

		gl.Trace(ctx, time.Now(), statement(insert, 4), nil)

		require.Equal(t, 1, recorded.Len())
		fields := fieldMap(recorded.All()[0])
		assert.Equal(t, "tenant-1", fields["tenant_id"])
		assert.Equal(t, "INV-1", fields["document_ref"])
	})

	t.Run("silent", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), statement(insert, 4), errors.New("x"))
		assert.Zero(t, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"WARN":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}
