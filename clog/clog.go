package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用 console/info/stdout 的默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(&cfg, applyOptions(opts...))
}

// Must 与 New 相同，出错时 panic。仅用于 main 和测试。
func Must(config *Config, opts ...Option) Logger {
	l, err := New(config, opts...)
	if err != nil {
		panic(err)
	}
	return l
}
