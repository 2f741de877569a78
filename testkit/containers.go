package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/db"
)

// NewPostgresDB 启动 PostgreSQL 容器并返回 db 组件，需要 HARVEST_INTEGRATION
func NewPostgresDB(t *testing.T) db.DB {
	RequireIntegration(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("harvest"),
		postgres.WithUsername("harvest"),
		postgres.WithPassword("harvest"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return NewDB(t, NewSQLConnector(t, &connector.SQLConfig{
		Name:     "test-postgres",
		Driver:   connector.DriverPostgres,
		Host:     host,
		Port:     port,
		Username: "harvest",
		Password: "harvest",
		Database: "harvest",
	}))
}

// NewMySQLDB 启动 MySQL 容器并返回 db 组件，需要 HARVEST_INTEGRATION
func NewMySQLDB(t *testing.T) db.DB {
	RequireIntegration(t)
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("harvest"),
		mysql.WithUsername("harvest"),
		mysql.WithPassword("harvest"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return NewDB(t, NewSQLConnector(t, &connector.SQLConfig{
		Name:     "test-mysql",
		Driver:   connector.DriverMySQL,
		Host:     host,
		Port:     port,
		Username: "harvest",
		Password: "harvest",
		Database: "harvest",
	}))
}

// NewRedisConnector 启动 Redis 容器并返回已连接的连接器，需要 HARVEST_INTEGRATION
func NewRedisConnector(t *testing.T) connector.RedisConnector {
	RequireIntegration(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	conn, err := connector.NewRedis(&connector.RedisConfig{Name: "test-redis", Addr: addr},
		connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx), "failed to connect to redis")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
