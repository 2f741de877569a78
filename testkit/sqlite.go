package testkit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/db"
)

// NewSQLiteConfig 返回 t.TempDir() 下的文件库配置（WAL 模式）
func NewSQLiteConfig(t *testing.T) *connector.SQLConfig {
	return &connector.SQLConfig{
		Name:   "test-sqlite",
		Driver: connector.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "harvest.db"),
	}
}

// NewSQLiteConnector 获取已连接的 SQLite 连接器，生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.SQLConnector {
	return NewSQLConnector(t, NewSQLiteConfig(t))
}

// NewSQLiteDB 获取基于 SQLite 的 db 组件
func NewSQLiteDB(t *testing.T) db.DB {
	return NewDB(t, NewSQLiteConnector(t))
}

// NewSQLConnector 按配置创建并连接 SQL 连接器
func NewSQLConnector(t *testing.T, cfg *connector.SQLConfig) connector.SQLConnector {
	t.Helper()
	conn, err := connector.NewSQL(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sql connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to %s", cfg.Driver)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewDB 在连接器之上创建 db 组件
func NewDB(t *testing.T, conn connector.SQLConnector) db.DB {
	t.Helper()
	database, err := db.New(conn, &db.Config{}, db.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create db")
	return database
}
