package server

import (
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option 管理接口选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	service string
	tracing bool
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("server")
		}
	}
}

// WithMeter 注入指标，/metrics 暴露它的 Prometheus 端点
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracing 为每个请求创建服务端 Span
func WithTracing(serviceName string) Option {
	return func(o *options) {
		o.service = serviceName
		o.tracing = true
	}
}

func applyOptions(opts []Option) options {
	o := options{service: "harvest"}
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
