package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// fallbackStep 当间隔为 0 且需要放大时的起始步长
const fallbackStep = 100 * time.Millisecond

// sourceState 单个数据源的限流状态，所有字段受 mu 保护
type sourceState struct {
	mu        sync.Mutex
	cfg       *Config
	delay     time.Duration
	successes int
	failures  int
	bucket    *rate.Limiter
}

func newSourceState(cfg *Config) *sourceState {
	s := &sourceState{cfg: cfg, delay: cfg.baseDelay()}
	if cfg.MaxRPS > 0 {
		s.bucket = rate.NewLimiter(rate.Limit(cfg.MaxRPS), cfg.Burst)
	}
	return s
}

type adaptiveLimiter struct {
	defaults *Config
	logger   clog.Logger
	delay    metrics.Gauge
	states   sync.Map // map[string]*sourceState
}

func newAdaptive(cfg *Config, logger clog.Logger, meter metrics.Meter) *adaptiveLimiter {
	return &adaptiveLimiter{
		defaults: cfg,
		logger:   logger,
		delay:    metrics.MustGauge(meter, MetricDelay, "Current adaptive delay per source.", metrics.WithUnit("s")),
	}
}

func (l *adaptiveLimiter) state(key string) *sourceState {
	if v, ok := l.states.Load(key); ok {
		return v.(*sourceState)
	}
	v, _ := l.states.LoadOrStore(key, newSourceState(l.defaults))
	return v.(*sourceState)
}

func (l *adaptiveLimiter) Configure(key string, o *Override) error {
	if key == "" {
		return ErrKeyEmpty
	}
	merged := o.Apply(l.defaults)
	if err := merged.validate(); err != nil {
		return err
	}
	l.states.Store(key, newSourceState(merged))
	l.logger.Debug("source rate limit configured",
		clog.String("source", key),
		clog.Float64("base_delay", merged.BaseDelay),
		clog.Float64("min_delay", merged.MinDelay),
		clog.Float64("max_delay", merged.MaxDelay),
		clog.Float64("max_rps", merged.MaxRPS))
	return nil
}

func (l *adaptiveLimiter) Acquire(key string) time.Duration {
	s := l.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

func (l *adaptiveLimiter) Report(key string, success bool) {
	s := l.state(key)

	s.mu.Lock()
	prev := s.delay
	if success {
		s.successes++
		s.failures = 0
		next := time.Duration(float64(s.delay) * s.cfg.DecayFactor)
		s.delay = clamp(min(next, s.delay), s.cfg.minDelay(), s.cfg.maxDelay())
	} else {
		s.failures++
		s.successes = 0
		next := time.Duration(float64(s.delay) * s.cfg.GrowthFactor)
		if next <= 0 {
			next = fallbackStep
		}
		s.delay = clamp(max(next, s.delay), s.cfg.minDelay(), s.cfg.maxDelay())
	}
	cur, failures := s.delay, s.failures
	s.mu.Unlock()

	l.delay.Set(context.Background(), cur.Seconds(), metrics.L(metrics.LabelSource, key))
	if cur != prev {
		l.logger.Debug("source delay adjusted",
			clog.String("source", key),
			clog.Bool("success", success),
			clog.Duration("from", prev),
			clog.Duration("to", cur),
			clog.Int("consecutive_failures", failures))
	}
}

func (l *adaptiveLimiter) Wait(ctx context.Context, key string) error {
	s := l.state(key)
	if s.bucket != nil {
		if err := s.bucket.Wait(ctx); err != nil {
			return err
		}
	}

	d := l.Acquire(key)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *adaptiveLimiter) State(key string) State {
	s := l.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Delay:                s.delay,
		ConsecutiveSuccesses: s.successes,
		ConsecutiveFailures:  s.failures,
		MinDelay:             s.cfg.minDelay(),
		MaxDelay:             s.cfg.maxDelay(),
	}
}
