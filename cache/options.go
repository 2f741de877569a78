package cache

import (
	"time"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// Option 缓存选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	now    func() time.Time
}

func (o *options) setDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithClock 替换时钟，测试中用于推进时间
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
