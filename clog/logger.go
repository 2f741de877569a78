// Package clog 为 harvest 提供基于 slog 的结构化日志组件。
//
// 每个组件通过 WithLogger 接收 Logger，并用 WithNamespace 标记自己：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	fetchLog := logger.WithNamespace("fetcher")
//	fetchLog.Info("page fetched", clog.String("source", "teams"), clog.Int("page", 2))
//
// 日志中的命名空间以 "." 连接，例如 "harvest.fetcher"。
package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal，
// 每个级别都有带 Context 和不带 Context 的版本。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// 带 Context 的版本会提取 WithContextField / WithTraceContext 声明的字段
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger，命名空间追加在现有命名空间之后
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别，对所有共享同一 handler 的子 Logger 生效
	SetLevel(level Level) error

	// Flush 强制同步缓冲区中的日志
	Flush()
}
