package cache

import (
	"path/filepath"

	"github.com/ceyewan/harvest/xerrors"
)

// Config 缓存配置
//
//	cache:
//	  dir: ./data/cache
//	  ttl_seconds: 3600      # 数据源未配置时的默认 ttl，0 表示不缓存
//	  memory_capacity: 1024  # L1 条目上限，0 关闭 L1
//	  serializer: msgpack
type Config struct {
	Dir            string `mapstructure:"dir"`
	TTLSeconds     int    `mapstructure:"ttl_seconds"`
	MemoryCapacity int    `mapstructure:"memory_capacity"`
	Serializer     string `mapstructure:"serializer"`
}

func (c *Config) validate() error {
	if c.Dir == "" {
		c.Dir = filepath.Join("data", "cache")
	}
	if c.MemoryCapacity < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "cache: memory_capacity must not be negative, got %d", c.MemoryCapacity)
	}
	if c.TTLSeconds < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "cache: ttl_seconds must not be negative, got %d", c.TTLSeconds)
	}
	return nil
}
