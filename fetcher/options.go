package fetcher

import (
	"net/http"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/harvest/cache"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option 抓取器选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracer  oteltrace.Tracer
	cache   cache.Cache
	client  *http.Client
	tracing bool
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

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("fetcher")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracer 注入 Tracer，并为出站请求启用 otelhttp 传播
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
		o.tracing = true
	}
}

// WithCache 注入响应缓存，未注入时不缓存
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithHTTPClient 替换 HTTP 客户端，此时代理轮换不生效
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}
