package pipeline

import (
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 10 * time.Minute
)

// Config Runner 配置
//
//	runner:
//	  workers: 4      # 同时运行的数据源上限
//	  timeout: 600    # 单次运行的默认截止时间（秒），数据源可覆盖
type Config struct {
	Workers        int     `mapstructure:"workers" json:"workers"`
	TimeoutSeconds float64 `mapstructure:"timeout" json:"timeout"`
}

func (c *Config) setDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeout.Seconds()
	}
}

func (c *Config) validate() error {
	if c.Workers < 0 {
		return xerrors.Config("runner: workers must be positive, got %d", c.Workers)
	}
	if c.TimeoutSeconds < 0 {
		return xerrors.Config("runner: timeout must not be negative")
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}
