package ratelimit

import (
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// Config 限流参数，间隔单位为秒
//
//	rate_limiter:
//	  base_delay: 0.5
//	  min_delay: 0.2
//	  max_delay: 10
//	  decay_factor: 0.9
//	  growth_factor: 2.0
//	  max_rps: 0      # >0 时启用令牌桶上限
//	  burst: 1
type Config struct {
	BaseDelay    float64 `mapstructure:"base_delay" json:"base_delay"`
	MinDelay     float64 `mapstructure:"min_delay" json:"min_delay"`
	MaxDelay     float64 `mapstructure:"max_delay" json:"max_delay"`
	DecayFactor  float64 `mapstructure:"decay_factor" json:"decay_factor"`
	GrowthFactor float64 `mapstructure:"growth_factor" json:"growth_factor"`
	MaxRPS       float64 `mapstructure:"max_rps" json:"max_rps"`
	Burst        int     `mapstructure:"burst" json:"burst"`
}

// DefaultConfig 返回默认限流参数
func DefaultConfig() *Config {
	return &Config{
		BaseDelay:    0.5,
		MinDelay:     0.2,
		MaxDelay:     10,
		DecayFactor:  0.9,
		GrowthFactor: 2.0,
	}
}

// Override 数据源级别的覆盖项。nil 字段沿用全局值，显式写出的 0 同样生效，
// 例如 min_delay: 0 取消该数据源的最小间隔，max_rps: 0 关闭令牌桶。
type Override struct {
	BaseDelay    *float64 `mapstructure:"base_delay" json:"base_delay,omitempty"`
	MinDelay     *float64 `mapstructure:"min_delay" json:"min_delay,omitempty"`
	MaxDelay     *float64 `mapstructure:"max_delay" json:"max_delay,omitempty"`
	DecayFactor  *float64 `mapstructure:"decay_factor" json:"decay_factor,omitempty"`
	GrowthFactor *float64 `mapstructure:"growth_factor" json:"growth_factor,omitempty"`
	MaxRPS       *float64 `mapstructure:"max_rps" json:"max_rps,omitempty"`
	Burst        *int     `mapstructure:"burst" json:"burst,omitempty"`
}

// Apply 返回 base 被 o 覆盖后的副本
func (o *Override) Apply(base *Config) *Config {
	out := *base
	if o == nil {
		return &out
	}
	override(&out.BaseDelay, o.BaseDelay)
	override(&out.MinDelay, o.MinDelay)
	override(&out.MaxDelay, o.MaxDelay)
	override(&out.DecayFactor, o.DecayFactor)
	override(&out.GrowthFactor, o.GrowthFactor)
	override(&out.MaxRPS, o.MaxRPS)
	override(&out.Burst, o.Burst)
	return &out
}

func override[T any](dst, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) validate() error {
	def := DefaultConfig()
	if c.DecayFactor == 0 {
		c.DecayFactor = def.DecayFactor
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = def.GrowthFactor
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}

	switch {
	case c.MinDelay < 0 || c.BaseDelay < 0:
		return xerrors.Wrap(ErrInvalidConfig, "delays must not be negative")
	case c.MinDelay > c.MaxDelay:
		return xerrors.Wrapf(ErrInvalidConfig, "min_delay %.3f exceeds max_delay %.3f", c.MinDelay, c.MaxDelay)
	case c.DecayFactor <= 0 || c.DecayFactor > 1:
		return xerrors.Wrapf(ErrInvalidConfig, "decay_factor must be in (0, 1], got %v", c.DecayFactor)
	case c.GrowthFactor < 1:
		return xerrors.Wrapf(ErrInvalidConfig, "growth_factor must be >= 1, got %v", c.GrowthFactor)
	case c.MaxRPS < 0:
		return xerrors.Wrapf(ErrInvalidConfig, "max_rps must not be negative, got %v", c.MaxRPS)
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *Config) minDelay() time.Duration { return seconds(c.MinDelay) }
func (c *Config) maxDelay() time.Duration { return seconds(c.MaxDelay) }

// baseDelay 落在 [min, max] 内
func (c *Config) baseDelay() time.Duration {
	return clamp(seconds(c.BaseDelay), c.minDelay(), c.maxDelay())
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
