package pipeline

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrSourceNotFound 数据源未登记
	ErrSourceNotFound = xerrors.Wrap(xerrors.ErrNotFound, "pipeline: source not found")

	// ErrDependencyNil 构建 Runner 时缺少必需组件
	ErrDependencyNil = xerrors.Wrap(xerrors.ErrInvalidInput, "pipeline: required dependency is nil")

	// ErrPanicRecovered 运行过程中发生 panic，已恢复
	ErrPanicRecovered = xerrors.Wrap(xerrors.ErrUnavailable, "pipeline: run panicked")
)
