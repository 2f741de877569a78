package dlock

import (
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// 驱动类型
const (
	DriverLocal = "local"
	DriverRedis = "redis"
)

// Config 锁配置
//
//	lock:
//	  driver: redis            # local | redis
//	  prefix: "harvest:lock:"
//	  default_ttl: 30s
type Config struct {
	Driver string `mapstructure:"driver" json:"driver"`

	// Prefix 锁 key 的全局前缀
	Prefix string `mapstructure:"prefix" json:"prefix"`

	// DefaultTTL redis 锁的过期时间，持有期间由 watchdog 每 TTL/3 续期
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl"`

	// RetryInterval Lock 的重试间隔
	RetryInterval time.Duration `mapstructure:"retry_interval" json:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverLocal
	}
	if c.Prefix == "" {
		c.Prefix = "harvest:lock:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 30 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverLocal, DriverRedis:
		return nil
	default:
		return xerrors.Config("dlock: unsupported driver %q", c.Driver)
	}
}
