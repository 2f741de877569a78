// Package breaker 提供按数据源隔离的熔断器，基于 gobreaker 的两阶段熔断器实现。
//
// 状态机（每个数据源独立）：
//   - closed：请求放行，连续失败达到 failure_threshold 后转为 open
//   - open：所有请求立即被拒绝（ErrOpenState），cooldown 结束后转为 half_open
//   - half_open：只放行一个探测请求，成功转为 closed，失败回到 open 并重新计时
//
// 两阶段用法，Allow 与结果上报分离：
//
//	done, err := brk.Allow("teams")
//	if err != nil {
//	    return err // errors.Is(err, breaker.ErrOpenState)
//	}
//	resp, err := client.Do(req)
//	done(err == nil)
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// Breaker 熔断器核心接口
type Breaker interface {
	// Configure 为 key 设置独立的熔断参数，并重置其状态
	Configure(key string, cfg *Config) error

	// Allow 判断 key 是否放行。放行时返回 done，调用方必须恰好调用一次以上报结果
	Allow(key string) (done func(success bool), err error)

	// Execute 在熔断保护下执行 fn，fn 返回 nil 视为成功
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error

	// State 返回 key 的状态快照
	State(key string) Snapshot
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式序列化，供 Admin API 输出
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "half_open":
		*s = StateHalfOpen
	case "open":
		*s = StateOpen
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "breaker: unknown state %q", text)
	}
	return nil
}

// Snapshot 单个数据源的熔断状态
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastTransition      time.Time `json:"last_transition"`
}

// Config 熔断参数
//
//	circuit_breaker:
//	  failure_threshold: 5
//	  cooldown_seconds: 60
type Config struct {
	// FailureThreshold 连续失败多少次后熔断（默认 5）
	FailureThreshold uint32 `mapstructure:"failure_threshold" json:"failure_threshold"`

	// CooldownSeconds 打开状态持续时间，之后进入半开（默认 60）
	CooldownSeconds float64 `mapstructure:"cooldown_seconds" json:"cooldown_seconds"`
}

// DefaultConfig 返回默认熔断参数
func DefaultConfig() *Config {
	return &Config{FailureThreshold: 5, CooldownSeconds: 60}
}

// Merge 用 c 中的非零字段覆盖 base 的副本
func (c *Config) Merge(base *Config) *Config {
	out := *base
	if c == nil {
		return &out
	}
	if c.FailureThreshold > 0 {
		out.FailureThreshold = c.FailureThreshold
	}
	if c.CooldownSeconds != 0 {
		out.CooldownSeconds = c.CooldownSeconds
	}
	return &out
}

func (c *Config) cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

func (c *Config) validate() error {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if c.CooldownSeconds == 0 {
		c.CooldownSeconds = DefaultConfig().CooldownSeconds
	}
	if c.CooldownSeconds < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// New 创建熔断器，cfg 作为未单独配置的 key 的默认参数，为 nil 时使用 DefaultConfig
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.setDefaults()

	return newBreaker(&c, o.logger, o.meter), nil
}
