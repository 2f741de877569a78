package cache

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrMiss 未命中或已过期
	ErrMiss = xerrors.Wrap(xerrors.ErrNotFound, "cache miss")

	// ErrInvalidKey namespace 或指纹不是合法的文件名
	ErrInvalidKey = xerrors.Wrap(xerrors.ErrInvalidInput, "cache: invalid key")
)
