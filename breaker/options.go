package breaker

import (
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option 组件初始化选项函数
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

// WithLogger 设置 Logger，内部添加 namespace "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}
