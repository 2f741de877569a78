package storage

import (
	"context"

	"github.com/ceyewan/harvest/record"
)

// Backend 一种存储后端，Write 对一批记录是原子的：要么整批生效，要么都不生效
type Backend interface {
	// Kind 返回后端类型："relational" 或 "file"
	Kind() string

	// Write 写入已过滤、已标量化的非空批次，返回实际写入的行数
	Write(ctx context.Context, target *Target, records []record.Record) (int, error)

	Close() error
}
