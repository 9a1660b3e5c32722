package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"cdprpa/internal/ctxkeys"
	"cdprpa/internal/logger"
)

// slowQuery 超过该耗时的 SQL 记为慢查询
const slowQuery = 500 * time.Millisecond

// GormLogger 将 GORM 日志转发到项目日志
type GormLogger struct {
	log   logger.Logger
	level glog.LogLevel
}

// NewGormLogger 创建 GORM 日志适配器，默认只输出告警与错误
func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{log: l, level: glog.Warn}
}

func (l *GormLogger) LogMode(level glog.LogLevel) glog.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) fields(ctx context.Context, data []any) []any {
	kv := make([]any, 0, len(data)+2)
	if id := ctxkeys.TraceID(ctx); id != "" {
		kv = append(kv, "traceId", id)
	}
	if len(data) > 0 {
		kv = append(kv, "data", data)
	}
	return kv
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= glog.Info {
		l.log.Info(msg, l.fields(ctx, data)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= glog.Warn {
		l.log.Warn(msg, l.fields(ctx, data)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= glog.Error {
		l.log.Error(msg, l.fields(ctx, data)...)
	}
}

// Trace 记录 SQL 执行，查询无结果不视为错误
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= glog.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	kv := append(l.fields(ctx, nil), "sql", sql, "rows", rows, "elapsed", elapsed)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= glog.Error:
		l.log.Err(err, "SQL执行错误", kv...)
	case elapsed > slowQuery && l.level >= glog.Warn:
		l.log.Warn("慢SQL查询", kv...)
	case l.level >= glog.Info:
		l.log.Debug("SQL执行", kv...)
	}
}
