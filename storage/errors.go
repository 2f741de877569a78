package storage

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrBackend 单个后端写入失败，不影响其他后端
	ErrBackend = xerrors.WithCode(xerrors.Wrap(xerrors.ErrUnavailable, "storage backend write failed"), xerrors.CodeStorage)

	// ErrNoBackend 目标类型没有对应的已配置后端
	ErrNoBackend = xerrors.Config("storage: no backend configured for target type")

	// ErrInvalidColumn 记录中存在无法安全写入的列名
	ErrInvalidColumn = xerrors.Wrap(xerrors.ErrInvalidInput, "storage: invalid column name")

	// ErrPanicRecovered 后端写入过程中发生 panic
	ErrPanicRecovered = xerrors.New("storage: backend panicked")
)
