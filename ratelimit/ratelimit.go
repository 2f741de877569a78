// Package ratelimit 提供按数据源隔离的自适应限流器。
//
// 每个数据源维护一个独立的等待间隔：成功时按 decay_factor 收缩到 min_delay，
// 失败时按 growth_factor 放大到 max_delay。Acquire 返回当前间隔，调用方在发请求前等待该时长；
// 这是建议性的背压，不同数据源之间互不阻塞。可选的 max_rps 令牌桶作为硬上限叠加在间隔之上。
//
//	limiter := ratelimit.New(&ratelimit.Config{BaseDelay: 0.5, MinDelay: 0.2, MaxDelay: 10},
//	    ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
//	_ = limiter.Configure("teams", &ratelimit.Override{MinDelay: &minDelay})
//	if err := limiter.Wait(ctx, "teams"); err != nil { ... }
//	resp, err := client.Do(req)
//	limiter.Report("teams", err == nil)
package ratelimit

import (
	"context"
	"time"
)

// Limiter 自适应限流器
type Limiter interface {
	// Configure 用 o 覆盖全局参数后作为 key 的独立限流参数，重置该 key 的状态
	Configure(key string, o *Override) error

	// Acquire 返回 key 当前应等待的间隔，始终落在 [MinDelay, MaxDelay]
	Acquire(key string) time.Duration

	// Report 记录一次请求结果，调整 key 的间隔
	Report(key string, success bool)

	// Wait 等待 Acquire 返回的间隔（以及令牌桶上限），ctx 取消时提前返回
	Wait(ctx context.Context, key string) error

	// State 返回 key 的当前状态快照
	State(key string) State
}

// State 单个数据源的限流状态
type State struct {
	Delay                time.Duration `json:"delay"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	MinDelay             time.Duration `json:"min_delay"`
	MaxDelay             time.Duration `json:"max_delay"`
}

// New 创建限流器，cfg 作为未单独配置的数据源的默认参数，为 nil 时使用 DefaultConfig
func New(cfg *Config, opts ...Option) (Limiter, error) {
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

	return newAdaptive(&c, o.logger, o.meter), nil
}
