package clog

import (
	"fmt"
	"strings"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config 日志配置
//
//	Level:      debug|info|warn|error|fatal
//	Format:     json|console
//	Output:     stdout|stderr|buffer|<文件路径>，buffer 需配合 WithBuffer 使用
//	AddSource:  是否输出调用位置
//	SourceRoot: 裁剪调用位置的路径前缀
type Config struct {
	Level      string `mapstructure:"level" json:"level" yaml:"level"`
	Format     string `mapstructure:"format" json:"format" yaml:"format"`
	Output     string `mapstructure:"output" json:"output" yaml:"output"`
	AddSource  bool   `mapstructure:"add_source" json:"addSource" yaml:"add_source"`
	SourceRoot string `mapstructure:"source_root" json:"sourceRoot" yaml:"source_root"`
}

// validate 设置默认值并检查 Level 和 Format
func (c *Config) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}

	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	format := strings.ToLower(c.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("invalid format: %s, must be json or console", c.Format)
	}
	return nil
}
