package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/db"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/testkit"
)

func newRelationalEngine(t *testing.T, database db.DB) *Engine {
	t.Helper()
	backend, err := NewRelational(database, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	engine, err := New([]Backend{backend}, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	return engine
}

func selectAll(t *testing.T, database db.DB, table, order string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, database.DB(context.Background()).Table(table).Order(order).Find(&rows).Error)
	return rows
}

func countRows(t *testing.T, database db.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, database.DB(context.Background()).Table(table).Count(&n).Error)
	return n
}

// relationalSuite 在任意方言上验证 upsert、schema 演进与空记录过滤
func relationalSuite(t *testing.T, database db.DB) {
	ctx := context.Background()

	t.Run("upsert is idempotent", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "upsert_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"id"}}}

		out, err := engine.Store(ctx, []record.Record{{"id": 1, "name": "a"}}, targets)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, out.Status)

		out, err = engine.Store(ctx, []record.Record{{"id": 1, "name": "b"}}, targets)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, out.Status)

		rows := selectAll(t, database, table, "id")
		require.Len(t, rows, 1)
		assert.Equal(t, "b", fmt.Sprint(rows[0]["name"]))
	})

	t.Run("batch with duplicates and new keys", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "dupes_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"id"}}}

		_, err := engine.Store(ctx, []record.Record{{"id": 1, "v": "x"}, {"id": 2, "v": "y"}}, targets)
		require.NoError(t, err)

		out, err := engine.Store(ctx, []record.Record{
			{"id": 2, "v": "y2"},
			{"id": 3, "v": "z"},
			{"id": 3, "v": "z2"},
			{"id": 4, "v": "w"},
		}, targets)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, out.Status)

		assert.EqualValues(t, 2+2, countRows(t, database, table))
		rows := selectAll(t, database, table, "id")
		assert.Equal(t, "y2", fmt.Sprint(rows[1]["v"]))
		assert.Equal(t, "z2", fmt.Sprint(rows[2]["v"]))
	})

	t.Run("new column is added without touching existing rows", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "evolve_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"id"}}}

		_, err := engine.Store(ctx, []record.Record{{"id": 1, "name": "a"}}, targets)
		require.NoError(t, err)
		_, err = engine.Store(ctx, []record.Record{{"id": 2, "name": "b", "score": 7}}, targets)
		require.NoError(t, err)

		rows := selectAll(t, database, table, "id")
		require.Len(t, rows, 2)
		assert.Equal(t, "a", fmt.Sprint(rows[0]["name"]))
		assert.Nil(t, rows[0]["score"])
		assert.Equal(t, "7", fmt.Sprint(rows[1]["score"]))
	})

	t.Run("empty records never drive table creation", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "empty_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"id"}}}

		out, err := engine.Store(ctx, []record.Record{{}}, targets)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, out.Status)
		assert.False(t, database.DB(ctx).Migrator().HasTable(table))

		out, err = engine.Store(ctx, []record.Record{{}, {"id": 1, "x": 2}}, targets)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Records)
		assert.Equal(t, 1, out.Dropped)
		assert.EqualValues(t, 1, countRows(t, database, table))

		cols, err := database.DB(ctx).Migrator().ColumnTypes(table)
		require.NoError(t, err)
		assert.Len(t, cols, 2)
	})

	t.Run("append without unique columns inserts every record", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "append_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table}}

		for i := 0; i < 2; i++ {
			_, err := engine.Store(ctx, []record.Record{{"id": 1, "v": "same"}}, targets)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 2, countRows(t, database, table))
	})

	t.Run("overwrite replaces table contents atomically", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "overwrite_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, Mode: ModeOverwrite}}

		_, err := engine.Store(ctx, []record.Record{{"id": 1}, {"id": 2}}, targets)
		require.NoError(t, err)
		_, err = engine.Store(ctx, []record.Record{{"id": 3}}, targets)
		require.NoError(t, err)

		rows := selectAll(t, database, table, "id")
		require.Len(t, rows, 1)
		assert.Equal(t, "3", fmt.Sprint(rows[0]["id"]))
	})

	t.Run("composite key with only key columns", func(t *testing.T) {
		engine := newRelationalEngine(t, database)
		table := "links_" + testkit.NewID()
		targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"a", "b"}}}

		for i := 0; i < 2; i++ {
			_, err := engine.Store(ctx, []record.Record{{"a": "x", "b": "y"}}, targets)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 1, countRows(t, database, table))
		assert.True(t, database.DB(ctx).Migrator().HasIndex(table, indexName(table, []string{"a", "b"})))
	})
}

func TestRelationalSQLite(t *testing.T) {
	relationalSuite(t, testkit.NewSQLiteDB(t))
}

func TestRelationalBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	database := testkit.NewSQLiteDB(t)
	engine := newRelationalEngine(t, database)
	table := "atomic_" + testkit.NewID()
	targets := []Target{{Type: KindRelational, TableOrPath: table, ColumnTypes: map[string]string{"n": "number"}}}

	_, err := engine.Store(ctx, []record.Record{{"n": 1}}, targets)
	require.NoError(t, err)

	// 触发器让第二行失败，整批回滚
	require.NoError(t, database.DB(ctx).Exec(
		fmt.Sprintf("CREATE TRIGGER reject_%s BEFORE INSERT ON %s WHEN NEW.n < 0 BEGIN SELECT RAISE(ABORT, 'negative'); END", table, table)).Error)

	out, err := engine.Store(ctx, []record.Record{{"n": 2}, {"n": -1}}, targets)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err(), ErrBackend)
	assert.EqualValues(t, 1, countRows(t, database, table))
}

func TestRelationalConcurrentUpsertsSameTable(t *testing.T) {
	ctx := context.Background()
	database := testkit.NewSQLiteDB(t)
	table := "concurrent_" + testkit.NewID()
	targets := []Target{{Type: KindRelational, TableOrPath: table, UniqueColumns: []string{"id"}}}

	// 两个引擎共享同一数据库，模拟两个数据源写同一张表
	engines := []*Engine{newRelationalEngine(t, database), newRelationalEngine(t, database)}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				out, err := engines[w%2].Store(ctx, []record.Record{{"id": i, "writer": w}}, targets)
				if assert.NoError(t, err) {
					assert.Equal(t, StatusSuccess, out.Status, "%v", out.Err())
				}
			}
		}(w)
	}
	wg.Wait()

	assert.EqualValues(t, 10, countRows(t, database, table))
}

func TestRelationalPostgres(t *testing.T) {
	relationalSuite(t, testkit.NewPostgresDB(t))
}

func TestRelationalMySQL(t *testing.T) {
	relationalSuite(t, testkit.NewMySQLDB(t))
}
