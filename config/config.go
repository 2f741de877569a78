package config

import (
	"context"
	"strings"

	"github.com/ceyewan/harvest/clog"
)

// Config 配置加载器自身的配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string // 配置文件搜索路径，默认 [".", "./config"]
	FileType  string   // 配置文件类型，默认 "yaml"
	EnvPrefix string   // 环境变量前缀，默认 "HARVEST"
	Watch     bool     // 是否监听配置文件变化
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "HARVEST"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// Option 加载器选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(&c, o.logger.WithNamespace("config")), nil
}

// Load 一步创建并加载配置
func Load(ctx context.Context, cfg *Config, opts ...Option) (Loader, error) {
	l, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}
