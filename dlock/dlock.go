// Package dlock 提供按 key 互斥的锁，用于保证同一数据源的运行不会并发。
//
// local 驱动在进程内生效；redis 驱动跨实例生效：SET NX 加锁，
// 持有期间由 watchdog 续期，释放时用 Lua 脚本校验 token，只有持有者能释放。
//
//	locker, _ := dlock.New(&dlock.Config{Driver: dlock.DriverRedis, Prefix: "harvest:lock:"},
//		dlock.WithRedisConnector(redisConn), dlock.WithLogger(logger))
//	ok, err := locker.TryLock(ctx, "source:teams")
//	if ok {
//		defer locker.Unlock(ctx, "source:teams")
//	}
package dlock

import (
	"context"
)

// Locker 按 key 加锁
type Locker interface {
	// Lock 阻塞加锁，直到成功或 ctx 结束
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞尝试加锁。
	// 成功返回 true, nil；锁已被占用（包括被本实例占用）返回 false, nil；其他错误返回 false, err
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放本实例持有的锁
	Unlock(ctx context.Context, key string) error

	// Close 停止所有续期，不关闭底层连接
	Close() error
}

// New 按驱动创建 Locker
func New(cfg *Config, opts ...Option) (Locker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	switch c.Driver {
	case DriverRedis:
		return newRedis(o.redisConnector, &c, o)
	default:
		return newLocal(&c, o), nil
	}
}
