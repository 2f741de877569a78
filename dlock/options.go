package dlock

import (
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/metrics"
)

// Option Locker 初始化选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	redisConnector connector.RedisConnector
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
			o.logger = l.WithNamespace("dlock")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithRedisConnector 注入 redis 连接器，redis 驱动必需
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}
