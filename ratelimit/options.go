package ratelimit

import (
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option 限流器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
}

func (o *options) setDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("ratelimit")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}
