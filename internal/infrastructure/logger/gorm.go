package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output to zap. Statements are logged at debug,
// slow statements at warn and failures at error. Cancelled statements
// (shutdown, request timeouts) stay at debug.
type GormLogger struct {
	log            *zap.Logger
	level          gormlogger.LogLevel
	slow           time.Duration
	reportNotFound bool
}

// GormLoggerOption configures a GormLogger.
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is slow.
// Zero disables slow statement warnings.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = threshold }
}

// WithIgnoreRecordNotFoundError controls whether gorm.ErrRecordNotFound
// is logged as an error. Lookups that miss are normal here, so it is
// ignored by default.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.reportNotFound = !ignore }
}

func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{log: log.Named("gorm"), level: level, slow: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	l.logf(gormlogger.Info, l.log.Sugar().Infof, msg, data)
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.logf(gormlogger.Warn, l.log.Sugar().Warnf, msg, data)
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	l.logf(gormlogger.Error, l.log.Sugar().Errorf, msg, data)
}

func (l *GormLogger) logf(min gormlogger.LogLevel, emit func(string, ...any), msg string, data []any) {
	if l.level >= min {
		emit(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error:
		if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.reportNotFound {
			return
		}
		if errors.Is(err, context.Canceled) {
			l.log.Debug("sql cancelled", statementFields(ctx, elapsed, fc)...)
			return
		}
		l.log.Error("sql error", append(statementFields(ctx, elapsed, fc), zap.Error(err))...)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		l.log.Warn(fmt.Sprintf("slow sql >= %v", l.slow), statementFields(ctx, elapsed, fc)...)
	case l.level >= gormlogger.Info:
		l.log.Debug("sql", statementFields(ctx, elapsed, fc)...)
	}
}

func statementFields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) []zap.Field {
	sql, rows := fc()
	fields := make([]zap.Field, 0, 5)
	fields = append(fields, zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return fields
}

// MapGormLogLevel maps log.gorm_mode to a GORM level. Unknown values give
// warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
