package metrics

import "github.com/ceyewan/harvest/clog"

// Option Meter 选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}
