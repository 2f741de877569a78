package dlock

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: config is nil")

	// ErrConnectorNil redis 驱动缺少连接器
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: redis connector is nil")

	// ErrKeyEmpty 锁 key 为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: key is empty")

	// ErrLockNotHeld 释放未持有的锁
	ErrLockNotHeld = xerrors.New("dlock: lock not held")

	// ErrOwnershipLost 锁已过期并被他人获取
	ErrOwnershipLost = xerrors.New("dlock: ownership lost")
)
