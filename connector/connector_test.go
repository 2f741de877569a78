package connector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/xerrors"
)

func TestSQLConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SQLConfig
		wantErr bool
	}{
		{name: "sqlite file", cfg: SQLConfig{Driver: DriverSQLite, DSN: "data/harvest.db"}},
		{name: "sqlite without dsn", cfg: SQLConfig{Driver: DriverSQLite}, wantErr: true},
		{name: "mysql from fields", cfg: SQLConfig{Driver: DriverMySQL, Host: "127.0.0.1", Username: "root", Database: "harvest"}},
		{name: "mysql missing database", cfg: SQLConfig{Driver: DriverMySQL, Host: "127.0.0.1", Username: "root"}, wantErr: true},
		{name: "postgres dsn only", cfg: SQLConfig{Driver: DriverPostgres, DSN: "host=db user=harvest dbname=harvest"}},
		{name: "postgres missing host", cfg: SQLConfig{Driver: DriverPostgres, Username: "harvest", Database: "harvest"}, wantErr: true},
		{name: "missing driver", cfg: SQLConfig{DSN: "x"}, wantErr: true},
		{name: "unknown driver", cfg: SQLConfig{Driver: "oracle", DSN: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfig)
				assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Name)
			assert.Positive(t, cfg.MaxOpenConns)
		})
	}
}

func TestSQLConfigDefaults(t *testing.T) {
	pg := SQLConfig{Driver: DriverPostgres, Host: "db", Username: "u", Database: "d"}
	require.NoError(t, pg.validate())
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "disable", pg.SSLMode)
	assert.Equal(t, "host=db port=5432 user=u password= dbname=d sslmode=disable TimeZone=UTC", postgresDSN(&pg))

	my := SQLConfig{Driver: DriverMySQL, Host: "db", Username: "u", Password: "p", Database: "d"}
	require.NoError(t, my.validate())
	assert.Equal(t, "u:p@tcp(db:3306)/d?charset=utf8mb4&parseTime=True&loc=Local", mysqlDSN(&my))
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "harvest.db")

	dsn, err := sqliteDSN(path)
	require.NoError(t, err)
	assert.Equal(t, path+"?_journal_mode=WAL&_busy_timeout=5000", dsn)
	assert.DirExists(t, filepath.Join(dir, "nested"))

	dsn, err = sqliteDSN(path + "?cache=shared")
	require.NoError(t, err)
	assert.Equal(t, path+"?cache=shared&_journal_mode=WAL&_busy_timeout=5000", dsn)

	dsn, err = sqliteDSN(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)
}

func TestRedisConfigValidation(t *testing.T) {
	ok := RedisConfig{Addr: "127.0.0.1:6379"}
	require.NoError(t, ok.validate())
	assert.Equal(t, "redis", ok.Name)
	assert.Equal(t, 10, ok.PoolSize)

	for _, bad := range []RedisConfig{{}, {Addr: "x", DB: -1}, {Addr: "x", MinIdleConns: -1}} {
		assert.ErrorIs(t, bad.validate(), ErrConfig)
	}
}

func TestSQLiteConnectorLifecycle(t *testing.T) {
	ctx := context.Background()
	conn, err := NewSQL(&SQLConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "harvest.db")},
		WithLogger(clog.Discard()))
	require.NoError(t, err)

	assert.Nil(t, conn.GetClient())
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrClientNil)
	assert.False(t, conn.IsHealthy())

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx), "connect is idempotent")
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, DriverSQLite, conn.Driver())
	assert.Equal(t, DriverSQLite, conn.Name())

	var mode string
	require.NoError(t, conn.GetClient().Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	require.NoError(t, conn.HealthCheck(ctx))
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")
	assert.Nil(t, conn.GetClient())
}

func TestConnectorConcurrentConnect(t *testing.T) {
	conn, err := NewSQL(&SQLConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "harvest.db")})
	require.NoError(t, err)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Connect(context.Background()))
		}()
	}
	wg.Wait()
	assert.NotNil(t, conn.GetClient())
}

func TestNewRedisDoesNotDial(t *testing.T) {
	conn, err := NewRedis(&RedisConfig{Addr: "127.0.0.1:1"}, WithTracing())
	require.NoError(t, err)
	assert.Nil(t, conn.GetClient())
	assert.ErrorIs(t, conn.HealthCheck(context.Background()), ErrClientNil)
	assert.NoError(t, conn.Close())
}
