// Package trace 初始化 OpenTelemetry TracerProvider（OTLP/gRPC 导出），
// 并提供 harvest 各组件共用的 Span 辅助函数与 gin 中间件。
//
// 未启用导出时仍安装一个只采样不导出的 provider，日志里的 trace_id 照常可用。
package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/harvest/xerrors"
)

const exportTimeout = 5 * time.Second

// Init 按配置安装全局 TracerProvider 与 W3C propagator，返回 shutdown 函数。
// cfg 为 nil 或未启用时等价于 Discard。
func Init(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	if cfg == nil || !cfg.Enabled {
		var c Config
		if cfg != nil {
			c = *cfg
		}
		return install(ctx, &c, sdktrace.AlwaysSample())
	}

	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(c.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
	}
	if c.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "trace: create otlp exporter")
	}

	process := sdktrace.WithBatcher(exporter)
	if c.Batcher == BatcherSimple {
		process = sdktrace.WithSyncer(exporter)
	}
	return install(ctx, &c, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.Sampler)), process)
}

// Discard 安装一个不导出的 TracerProvider：Span 与 TraceID 正常生成，但不发送到任何后端
func Discard(serviceName string) (func(context.Context) error, error) {
	return install(context.Background(), &Config{ServiceName: serviceName}, sdktrace.AlwaysSample())
}

func install(ctx context.Context, c *Config, sampler sdktrace.Sampler, extra ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := newResource(ctx, c)
	if err != nil {
		return nil, err
	}
	opts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}, extra...)

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newResource(ctx context.Context, c *Config) (*resource.Resource, error) {
	var attrs []resource.Option
	if c.ServiceName != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceNameKey.String(c.ServiceName)))
	}
	if c.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(c.Version)))
	}
	if c.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironmentKey.String(c.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, xerrors.Wrap(err, "trace: create resource")
	}
	return res, nil
}
