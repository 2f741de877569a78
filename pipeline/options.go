package pipeline

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option Runner 与 Scheduler 的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tracer oteltrace.Tracer
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("pipeline")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracer 注入 Tracer，未注入时使用全局 Provider
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	return o
}
