package pipeline

import (
	"github.com/ceyewan/harvest/breaker"
)

// SourceStatus 数据源的当前状态，供管理接口展示
type SourceStatus struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Enabled  bool             `json:"enabled"`
	Schedule string           `json:"schedule,omitempty"`
	Breaker  breaker.Snapshot `json:"breaker"`
	Limiter  LimiterStatus    `json:"rate_limiter"`
	LastRun  *RunOutcome      `json:"last_run,omitempty"`
}

// LimiterStatus 限流器状态，时间以秒表示
type LimiterStatus struct {
	DelaySeconds         float64 `json:"delay_seconds"`
	MinDelaySeconds      float64 `json:"min_delay_seconds"`
	MaxDelaySeconds      float64 `json:"max_delay_seconds"`
	ConsecutiveSuccesses int     `json:"consecutive_successes"`
	ConsecutiveFailures  int     `json:"consecutive_failures"`
}

// Status 单个数据源的状态
func (r *Runner) Status(name string) (SourceStatus, bool) {
	e, ok := r.deps.Registry.get(name)
	if !ok {
		return SourceStatus{}, false
	}
	lim := r.deps.Limiter.State(name)
	st := SourceStatus{
		Name:     name,
		Type:     e.source.kind(),
		Enabled:  e.source.IsEnabled(),
		Schedule: e.source.Schedule,
		Breaker:  r.deps.Breaker.State(name),
		Limiter: LimiterStatus{
			DelaySeconds:         lim.Delay.Seconds(),
			MinDelaySeconds:      lim.MinDelay.Seconds(),
			MaxDelaySeconds:      lim.MaxDelay.Seconds(),
			ConsecutiveSuccesses: lim.ConsecutiveSuccesses,
			ConsecutiveFailures:  lim.ConsecutiveFailures,
		},
	}
	if last, ok := r.LastOutcome(name); ok {
		st.LastRun = &last
	}
	return st, true
}

// Statuses 按名称排序的全部数据源状态
func (r *Runner) Statuses() []SourceStatus {
	names := r.deps.Registry.Names()
	out := make([]SourceStatus, 0, len(names))
	for _, name := range names {
		if st, ok := r.Status(name); ok {
			out = append(out, st)
		}
	}
	return out
}
