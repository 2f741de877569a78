package app

import (
	"context"
	"path/filepath"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/cache"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/config"
	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/db"
	"github.com/ceyewan/harvest/dlock"
	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/pipeline"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/server"
	"github.com/ceyewan/harvest/storage"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// DefaultCacheTTLSeconds 未配置 cache.ttl_seconds 时的默认缓存时长
const DefaultCacheTTLSeconds = 3600

// Info 服务自身信息
type Info struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// Config harvest 的完整配置，对应 config.yaml 的顶层结构
type Config struct {
	App            Info                   `mapstructure:"app"`
	Log            clog.Config            `mapstructure:"log"`
	Metrics        metrics.Config         `mapstructure:"metrics"`
	Trace          trace.Config           `mapstructure:"trace"`
	Database       connector.SQLConfig    `mapstructure:"database"`
	DB             db.Config              `mapstructure:"db"`
	Redis          *connector.RedisConfig `mapstructure:"redis"`
	Cache          cache.Config           `mapstructure:"cache"`
	RateLimiter    *ratelimit.Config      `mapstructure:"rate_limiter"`
	CircuitBreaker *breaker.Config        `mapstructure:"circuit_breaker"`
	Fetcher        fetcher.Config         `mapstructure:"fetcher"`
	Exports        storage.FileConfig     `mapstructure:"exports"`
	Lock           dlock.Config           `mapstructure:"lock"`
	Runner         pipeline.Config        `mapstructure:"runner"`
	Server         server.Config          `mapstructure:"server"`
	Sources        []pipeline.Source      `mapstructure:"sources"`
}

// LoadConfig 从 dir 加载 config.yaml（叠加 config.<env>.yaml、.env 与 HARVEST_ 环境变量）
func LoadConfig(ctx context.Context, dir string, opts ...config.Option) (*Config, config.Loader, error) {
	loader, err := config.Load(ctx, &config.Config{Paths: []string{dir}, Watch: true}, opts...)
	if err != nil {
		return nil, nil, err
	}
	// 预先填入默认值，解码只覆盖配置中出现的键，显式的 0 得以保留
	cfg := &Config{RateLimiter: ratelimit.DefaultConfig()}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, nil, xerrors.Wrap(err, "decode configuration")
	}
	if loader.Get("cache.ttl_seconds") == nil {
		cfg.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "harvest"
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.App.Name
	}
	if c.Metrics.Version == "" {
		c.Metrics.Version = c.App.Version
	}
	if c.Trace.ServiceName == "" {
		c.Trace.ServiceName = c.App.Name
	}
	if c.Trace.Version == "" {
		c.Trace.Version = c.App.Version
	}
	if c.Trace.Environment == "" {
		c.Trace.Environment = c.App.Env
	}
	if c.Database.Driver == "" {
		c.Database.Driver = connector.DriverSQLite
		if c.Database.DSN == "" {
			c.Database.DSN = filepath.Join("data", "harvest.db")
		}
	}
	if c.RateLimiter == nil {
		c.RateLimiter = ratelimit.DefaultConfig()
	}
	c.CircuitBreaker = c.CircuitBreaker.Merge(breaker.DefaultConfig())
	c.Database.Password = config.ExpandEnv(c.Database.Password)
	c.Database.DSN = config.ExpandEnv(c.Database.DSN)
	c.Server.Token = config.ExpandEnv(c.Server.Token)
	if c.Redis != nil {
		c.Redis.Password = config.ExpandEnv(c.Redis.Password)
	}
}

// Validate 检查跨组件的约束，各组件自身的配置在创建时校验
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return xerrors.Config("no sources configured")
	}
	if c.Lock.Driver == dlock.DriverRedis && c.Redis == nil {
		return xerrors.Config("lock driver redis requires a redis section")
	}
	return nil
}
