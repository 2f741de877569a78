package dlock

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/xerrors"
)

// localLocker 进程内互斥，锁一直持有到 Unlock
type localLocker struct {
	cfg     *Config
	logger  clog.Logger
	metrics *lockMetrics
	mu      sync.Mutex
	held    map[string]struct{}
}

func newLocal(cfg *Config, o options) *localLocker {
	return &localLocker{
		cfg:     cfg,
		logger:  o.logger.With(clog.String("driver", DriverLocal)),
		metrics: newLockMetrics(o.meter, DriverLocal),
		held:    make(map[string]struct{}),
	}
}

func (l *localLocker) TryLock(ctx context.Context, key string, _ ...LockOption) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	l.mu.Lock()
	_, busy := l.held[key]
	if !busy {
		l.held[key] = struct{}{}
	}
	l.mu.Unlock()

	l.metrics.observe(ctx, !busy)
	if !busy {
		l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key))
	}
	return !busy, nil
}

func (l *localLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return retryLock(ctx, l, key, l.cfg.RetryInterval, opts)
}

func (l *localLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	_, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()

	if !ok {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	l.metrics.release(ctx)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

func (l *localLocker) Close() error { return nil }

// retryLock 以固定间隔重试 TryLock，直到成功或 ctx 结束
func retryLock(ctx context.Context, l Locker, key string, interval time.Duration, opts []LockOption) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := l.TryLock(ctx, key, opts...)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
