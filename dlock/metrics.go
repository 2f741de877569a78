package dlock

import (
	"context"

	"github.com/ceyewan/harvest/metrics"
)

// 指标名
const (
	// MetricLockAcquired 加锁成功次数 (Counter)
	MetricLockAcquired = "harvest_dlock_acquired_total"

	// MetricLockContended 锁已被占用的次数 (Counter)
	MetricLockContended = "harvest_dlock_contended_total"

	// MetricLockReleased 释放次数 (Counter)
	MetricLockReleased = "harvest_dlock_released_total"
)

type lockMetrics struct {
	driver    string
	acquired  metrics.Counter
	contended metrics.Counter
	released  metrics.Counter
}

func newLockMetrics(m metrics.Meter, driver string) *lockMetrics {
	return &lockMetrics{
		driver:    driver,
		acquired:  metrics.MustCounter(m, MetricLockAcquired, "Locks acquired."),
		contended: metrics.MustCounter(m, MetricLockContended, "Lock attempts that found the lock held."),
		released:  metrics.MustCounter(m, MetricLockReleased, "Locks released."),
	}
}

func (m *lockMetrics) observe(ctx context.Context, ok bool) {
	if ok {
		m.acquired.Inc(ctx, metrics.L(metrics.LabelBackend, m.driver))
	} else {
		m.contended.Inc(ctx, metrics.L(metrics.LabelBackend, m.driver))
	}
}

func (m *lockMetrics) release(ctx context.Context) {
	m.released.Inc(ctx, metrics.L(metrics.LabelBackend, m.driver))
}
