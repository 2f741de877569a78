package connector

import (
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// 支持的 SQL 驱动
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// SQLConfig 关系型数据库连接配置
//
//	database:
//	  driver: sqlite          # sqlite | mysql | postgres
//	  dsn: data/harvest.db    # sqlite 为文件路径，":memory:" 为内存库
//	  # mysql / postgres 未给出 dsn 时由以下字段拼接
//	  host: 127.0.0.1
//	  port: 5432
//	  username: harvest
//	  password: ${PG_PASSWORD}
//	  database: harvest
type SQLConfig struct {
	Name   string `mapstructure:"name"`   // 连接器名称 (默认: 驱动名)
	Driver string `mapstructure:"driver"` // [必填] sqlite | mysql | postgres
	DSN    string `mapstructure:"dsn"`    // 完整 DSN，优先级最高

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // 默认: mysql 3306, postgres 5432
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	Charset  string `mapstructure:"charset"`  // mysql (默认: "utf8mb4")
	SSLMode  string `mapstructure:"sslmode"`  // postgres (默认: "disable")
	Timezone string `mapstructure:"timezone"` // postgres (默认: "UTC")

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认: 10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认: 100，sqlite 固定为 1
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认: 1h
}

func (c *SQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = c.Driver
	}
	switch c.Driver {
	case DriverMySQL:
		if c.Port == 0 {
			c.Port = 3306
		}
		if c.Charset == "" {
			c.Charset = "utf8mb4"
		}
	case DriverPostgres:
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
		if c.Timezone == "" {
			c.Timezone = "UTC"
		}
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *SQLConfig) validate() error {
	c.setDefaults()
	switch c.Driver {
	case DriverSQLite:
		if c.DSN == "" {
			return xerrors.Wrap(ErrConfig, "sqlite dsn is required")
		}
	case DriverMySQL, DriverPostgres:
		if c.DSN != "" {
			return nil
		}
		if c.Host == "" {
			return xerrors.Wrapf(ErrConfig, "%s host is required", c.Driver)
		}
		if c.Port <= 0 {
			return xerrors.Wrapf(ErrConfig, "%s port must be positive", c.Driver)
		}
		if c.Username == "" {
			return xerrors.Wrapf(ErrConfig, "%s username is required", c.Driver)
		}
		if c.Database == "" {
			return xerrors.Wrapf(ErrConfig, "%s database is required", c.Driver)
		}
	case "":
		return xerrors.Wrap(ErrConfig, "driver is required")
	default:
		return xerrors.Wrapf(ErrConfig, "unsupported driver %q", c.Driver)
	}
	return nil
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `mapstructure:"name"`     // 连接器名称 (默认: "redis")
	Addr     string `mapstructure:"addr"`     // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选]
	DB       int    `mapstructure:"db"`       // [可选] 默认 0

	PoolSize     int           `mapstructure:"pool_size"`      // 默认: 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认: 0
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认: 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认: 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认: 3s
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "redis"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is required")
	}
	if c.DB < 0 {
		return xerrors.Wrapf(ErrConfig, "redis db must not be negative, got %d", c.DB)
	}
	if c.MinIdleConns < 0 {
		return xerrors.Wrapf(ErrConfig, "redis min_idle_conns must not be negative, got %d", c.MinIdleConns)
	}
	return nil
}
