package storage

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/db"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// defaultBatchSize 单条 INSERT 语句的最大行数
const defaultBatchSize = 200

// tableState 单张表的写锁与已知列缓存
type tableState struct {
	mu      sync.Mutex
	columns map[string]struct{} // nil 表示尚未从数据库加载
	indexed bool
}

type relationalBackend struct {
	db        db.DB
	logger    clog.Logger
	batchSize int
	tables    sync.Map // map[string]*tableState
}

// NewRelational 创建关系型后端。同一进程内对同一张表的写入串行化，
// 跨进程的冲突写入由数据库自身的锁（sqlite WAL + busy_timeout）串行化。
func NewRelational(database db.DB, opts ...Option) (Backend, error) {
	if database == nil {
		return nil, xerrors.Config("storage: relational backend requires a database")
	}
	o := applyOptions(opts)
	return &relationalBackend{
		db:        database,
		logger:    o.logger.With(clog.String("backend", KindRelational)),
		batchSize: defaultBatchSize,
	}, nil
}

func (b *relationalBackend) Kind() string { return KindRelational }
func (b *relationalBackend) Close() error { return nil }

func (b *relationalBackend) table(name string) *tableState {
	v, _ := b.tables.LoadOrStore(name, &tableState{})
	return v.(*tableState)
}

func (b *relationalBackend) Write(ctx context.Context, target *Target, records []record.Record) (int, error) {
	table := target.TableOrPath
	st := b.table(table)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := b.ensureSchema(ctx, st, target, records); err != nil {
		return 0, err
	}

	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = map[string]any(r)
	}
	mode := target.EffectiveMode()

	err := b.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if mode == ModeOverwrite {
			if err := tx.Exec("DELETE FROM ?", clause.Table{Name: table}).Error; err != nil {
				return xerrors.Wrapf(err, "clear table %s", table)
			}
		}
		for start := 0; start < len(rows); start += b.batchSize {
			chunk := rows[start:min(start+b.batchSize, len(rows))]
			q := tx.Table(table)
			if conflict, ok := onConflict(target, records); ok && mode == ModeUpsert {
				q = q.Clauses(conflict)
			}
			if err := q.Create(&chunk).Error; err != nil {
				return xerrors.Wrapf(err, "insert into %s", table)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// onConflict 唯一键冲突时更新所有非键列；所有列都是键时忽略冲突
func onConflict(target *Target, records []record.Record) (clause.OnConflict, bool) {
	if len(target.UniqueColumns) == 0 {
		return clause.OnConflict{}, false
	}
	keys := make(map[string]bool, len(target.UniqueColumns))
	conflict := clause.OnConflict{}
	for _, k := range target.UniqueColumns {
		keys[k] = true
		conflict.Columns = append(conflict.Columns, clause.Column{Name: k})
	}
	var updates []string
	for _, col := range record.UnionColumns(records) {
		if !keys[col] {
			updates = append(updates, col)
		}
	}
	if len(updates) == 0 {
		conflict.DoNothing = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(updates)
	}
	return conflict, true
}

// ensureSchema 首次写入时建表，之后只增加新列，从不修改或删除已有列
func (b *relationalBackend) ensureSchema(ctx context.Context, st *tableState, target *Target, records []record.Record) error {
	table := target.TableOrPath
	dialect := b.db.Dialect()
	gdb := b.db.DB(ctx)
	migrator := gdb.Migrator()

	keys := make(map[string]bool, len(target.UniqueColumns))
	for _, k := range target.UniqueColumns {
		keys[k] = true
	}
	schema := record.InferSchema(records, target.Hints())
	for k := range keys {
		if _, ok := schema[k]; !ok {
			schema[k] = record.TypeText
			if hint, ok := target.Hints()[k]; ok {
				schema[k] = hint
			}
		}
	}

	if st.columns == nil {
		if !migrator.HasTable(table) {
			if err := gdb.Exec(createTableSQL(gdb, dialect, table, schema, keys)).Error; err != nil {
				return xerrors.Wrapf(err, "create table %s", table)
			}
			b.logger.InfoContext(ctx, "table created",
				clog.String("table", table),
				clog.Strings("columns", schema.Columns()))
		}
		if err := b.loadColumns(gdb, st, table); err != nil {
			return err
		}
	}

	for _, col := range schema.Columns() {
		if _, ok := st.columns[col]; ok {
			continue
		}
		if err := gdb.Exec(addColumnSQL(gdb, dialect, table, col, schema[col], keys[col])).Error; err != nil {
			// 其他进程可能已经加上了这一列
			if lerr := b.loadColumns(gdb, st, table); lerr != nil || !st.has(col) {
				return xerrors.Wrapf(err, "add column %s.%s", table, col)
			}
			continue
		}
		st.columns[col] = struct{}{}
		b.logger.InfoContext(ctx, "column added",
			clog.String("table", table),
			clog.String("column", col),
			clog.String("type", string(schema[col])))
	}

	if len(target.UniqueColumns) > 0 && !st.indexed {
		name := indexName(table, target.UniqueColumns)
		if !migrator.HasIndex(table, name) {
			if err := gdb.Exec(createIndexSQL(gdb, table, target.UniqueColumns)).Error; err != nil && !migrator.HasIndex(table, name) {
				return xerrors.Wrapf(err, "create unique index %s", name)
			}
		}
		st.indexed = true
	}
	return nil
}

func (b *relationalBackend) loadColumns(gdb *gorm.DB, st *tableState, table string) error {
	existing, err := gdb.Migrator().ColumnTypes(table)
	if err != nil {
		return xerrors.Wrapf(err, "inspect table %s", table)
	}
	st.columns = make(map[string]struct{}, len(existing))
	for _, ct := range existing {
		st.columns[ct.Name()] = struct{}{}
	}
	return nil
}

func (st *tableState) has(col string) bool {
	_, ok := st.columns[col]
	return ok
}
