package connector

import (
	"github.com/ceyewan/harvest/clog"
)

type options struct {
	logger  clog.Logger
	tracing bool
}

// Option 配置连接器的选项
type Option func(*options)

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithTracing 为 redis 客户端挂载 OpenTelemetry 追踪
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

func applyOptions(opts []Option) *options {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()
	return opt
}
