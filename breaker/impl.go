package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// keyBreaker 单个 key 的熔断器，lastTransition 记录最近一次状态变更时间（UnixNano）
type keyBreaker struct {
	cb             *gobreaker.TwoStepCircuitBreaker[struct{}]
	lastTransition atomic.Int64
}

type circuitBreaker struct {
	defaults     *Config
	logger       clog.Logger
	stateChanges metrics.Counter
	rejected     metrics.Counter
	breakers     sync.Map // map[string]*keyBreaker
}

func newBreaker(cfg *Config, logger clog.Logger, meter metrics.Meter) *circuitBreaker {
	return &circuitBreaker{
		defaults:     cfg,
		logger:       logger,
		stateChanges: metrics.MustCounter(meter, MetricStateChanges, "Circuit breaker state changes."),
		rejected:     metrics.MustCounter(meter, MetricRejected, "Requests rejected by an open circuit breaker."),
	}
}

func (b *circuitBreaker) newKeyBreaker(key string, cfg *Config) *keyBreaker {
	kb := &keyBreaker{}
	kb.lastTransition.Store(time.Now().UnixNano())
	threshold := cfg.FailureThreshold
	kb.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1, // 半开状态只放行一个探测请求
		Interval:    0, // 闭合状态下不按周期清空计数，只看连续失败
		Timeout:     cfg.cooldown(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			kb.lastTransition.Store(time.Now().UnixNano())
			b.onStateChange(name, from, to)
		},
	})
	return kb
}

func (b *circuitBreaker) get(key string) *keyBreaker {
	if v, ok := b.breakers.Load(key); ok {
		return v.(*keyBreaker)
	}
	v, _ := b.breakers.LoadOrStore(key, b.newKeyBreaker(key, b.defaults))
	return v.(*keyBreaker)
}

func (b *circuitBreaker) Configure(key string, cfg *Config) error {
	if key == "" {
		return ErrKeyEmpty
	}
	merged := cfg.Merge(b.defaults)
	if err := merged.validate(); err != nil {
		return err
	}
	b.breakers.Store(key, b.newKeyBreaker(key, merged))
	b.logger.Debug("source circuit breaker configured",
		clog.String("source", key),
		clog.Int("failure_threshold", int(merged.FailureThreshold)),
		clog.Duration("cooldown", merged.cooldown()))
	return nil
}

func (b *circuitBreaker) Allow(key string) (func(success bool), error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	done, err := b.get(key).cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejected.Inc(context.Background(), metrics.L(metrics.LabelSource, key))
			return nil, ErrOpenState
		}
		return nil, err
	}

	var once sync.Once
	return func(success bool) {
		once.Do(func() { done(success) })
	}, nil
}

func (b *circuitBreaker) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	done, err := b.Allow(key)
	if err != nil {
		return err
	}
	err = fn(ctx)
	done(err == nil)
	return err
}

func (b *circuitBreaker) State(key string) Snapshot {
	kb := b.get(key)
	st := fromGobreaker(kb.cb.State())
	return Snapshot{
		State:               st,
		ConsecutiveFailures: kb.cb.Counts().ConsecutiveFailures,
		LastTransition:      time.Unix(0, kb.lastTransition.Load()),
	}
}

func (b *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	fields := []clog.Field{
		clog.String("source", name),
		clog.String("from", f.String()),
		clog.String("to", t.String()),
	}
	if t == StateOpen {
		b.logger.Warn("circuit breaker opened", fields...)
	} else {
		b.logger.Info("circuit breaker state changed", fields...)
	}

	b.stateChanges.Inc(context.Background(),
		metrics.L(metrics.LabelSource, name),
		metrics.L(LabelFromState, f.String()),
		metrics.L(LabelToState, t.String()))
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
