package ratelimit

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrInvalidConfig 限流参数不合法
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid config")

	// ErrKeyEmpty 数据源标识为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")
)
