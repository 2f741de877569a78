package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ceyewan/harvest"

// Tracer 返回 harvest 的 Tracer，tracer 为 nil 时使用全局 Provider
func Tracer(tracer oteltrace.Tracer) oteltrace.Tracer {
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

// StartSpan 启动一个内部 Span
func StartSpan(ctx context.Context, tracer oteltrace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return Tracer(tracer).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// StartClientSpan 启动一个出站请求 Span
func StartClientSpan(ctx context.Context, tracer oteltrace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return Tracer(tracer).Start(ctx, name,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(attrs...),
	)
}

// MarkSpanError err 不为 nil 时记录并将 Span 标记为错误
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
