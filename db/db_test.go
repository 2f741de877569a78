package db

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/connector"
)

func newTestDB(t *testing.T, cfg *Config, opts ...Option) DB {
	t.Helper()
	conn, err := connector.NewSQL(&connector.SQLConfig{
		Driver: connector.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "harvest.db"),
	})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })

	database, err := New(conn, cfg, opts...)
	require.NoError(t, err)
	return database
}

func TestNewRequiresConnectedConnector(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrConnectorRequired)

	conn, err := connector.NewSQL(&connector.SQLConfig{Driver: connector.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	_, err = New(conn, nil)
	assert.ErrorIs(t, err, ErrConnectorRequired)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t, nil, WithSilentMode())
	assert.Equal(t, connector.DriverSQLite, database.Dialect())

	require.NoError(t, database.DB(ctx).Exec("CREATE TABLE teams (id INTEGER PRIMARY KEY, name TEXT)").Error)

	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Exec("INSERT INTO teams (id, name) VALUES (1, 'a')").Error
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO teams (id, name) VALUES (2, 'b')").Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, database.DB(ctx).Table("teams").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSQLErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithBuffer(&buf))
	require.NoError(t, err)

	database := newTestDB(t, &Config{SlowThreshold: time.Hour, Tracing: true}, WithLogger(logger))
	err = database.DB(context.Background()).Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)

	assert.Contains(t, buf.String(), "sql error")
	assert.Contains(t, buf.String(), "missing_table")
}
