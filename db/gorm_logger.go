package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/harvest/clog"
)

// gormLogger 将 GORM 日志适配到 clog
type gormLogger struct {
	logger        clog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log clog.Logger, silent bool, slow time.Duration) logger.Interface {
	level := logger.Info
	if silent {
		level = logger.Silent
	}
	return &gormLogger{
		logger:        log,
		level:         level,
		slowThreshold: slow,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace 记录 SQL 执行日志：错误、慢查询、普通查询依次降级
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "sql error",
			clog.Duration("duration", elapsed),
			clog.String("sql", sql),
			clog.Int64("rows", rows),
			clog.Error(err),
		)
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		l.logger.WarnContext(ctx, "slow sql",
			clog.Duration("duration", elapsed),
			clog.String("sql", sql),
			clog.Int64("rows", rows),
		)
	case l.level >= logger.Info:
		l.logger.DebugContext(ctx, "sql",
			clog.Duration("duration", elapsed),
			clog.String("sql", sql),
			clog.Int64("rows", rows),
		)
	}
}
