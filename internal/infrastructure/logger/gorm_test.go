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

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	query := `SELECT * FROM "invoices" WHERE status = 'PENDENTE'`
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		begin   time.Duration
		err     error
		wantMsg string
		want    zapcore.Level
	}{
		{"query at info", gormlogger.Info, nil, 0, nil, "sql", zapcore.DebugLevel},
		{"error", gormlogger.Error, nil, 0, errors.New("duplicate key"), "sql error", zapcore.ErrorLevel},
		{"cancelled", gormlogger.Error, nil, 0, context.Canceled, "sql cancelled", zapcore.DebugLevel},
		{"slow", gormlogger.Warn, []GormLoggerOption{WithSlowThreshold(10 * time.Millisecond)}, time.Second, nil, "slow sql >= 10ms", zapcore.WarnLevel},
		{"not found reported when asked", gormlogger.Error, []GormLoggerOption{WithIgnoreRecordNotFoundError(false)}, 0, gormlogger.ErrRecordNotFound, "sql error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := NewGormLogger(zap.New(core), tt.level, tt.opts...)
			ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-9")
			l.Trace(ctx, time.Now().Add(-tt.begin), sqlFn(query, 2), tt.err)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.want, entry.Level)
			assert.Equal(t, query, entry.ContextMap()["sql"])
			assert.Equal(t, "req-9", entry.ContextMap()["request_id"])
		})
	}

	t.Run("silent and ignored not found", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		NewGormLogger(zap.New(core), gormlogger.Silent).Trace(context.Background(), time.Now(), sqlFn(query, 0), errors.New("x"))
		NewGormLogger(zap.New(core), gormlogger.Error).Trace(context.Background(), time.Now(), sqlFn(query, 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_LogMode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Info)
	quiet := l.LogMode(gormlogger.Silent)

	quiet.Info(context.Background(), "migrated %d tables", 4)
	assert.Zero(t, logs.Len())
	l.Info(context.Background(), "migrated %d tables", 4)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "migrated 4 tables", logs.All()[0].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
