package server

import (
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// Config 管理接口配置
//
//	server:
//	  addr: ":8080"
//	  token: "${HARVEST_ADMIN_TOKEN}"  # 非空时手动触发需要 Authorization: Bearer <token>
//	  trigger_rps: 1                   # 每个客户端的手动触发速率，0 表示不限制
//	  shutdown_timeout: 10
type Config struct {
	Addr                   string  `mapstructure:"addr" json:"addr"`
	Token                  string  `mapstructure:"token" json:"-"`
	TriggerRPS             float64 `mapstructure:"trigger_rps" json:"trigger_rps"`
	ShutdownTimeoutSeconds float64 `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeoutSeconds == 0 {
		c.ShutdownTimeoutSeconds = 10
	}
}

func (c *Config) validate() error {
	if c.TriggerRPS < 0 {
		return xerrors.Config("server: trigger_rps must not be negative")
	}
	if c.ShutdownTimeoutSeconds < 0 {
		return xerrors.Config("server: shutdown_timeout must not be negative")
	}
	return nil
}

// ShutdownTimeout 优雅关闭的最长等待时间
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds * float64(time.Second))
}
