package db

import "github.com/ceyewan/harvest/xerrors"

// ErrConnectorRequired 未提供已连接的 SQL 连接器
var ErrConnectorRequired = xerrors.Wrap(xerrors.ErrInvalidInput, "db: connected sql connector is required")
