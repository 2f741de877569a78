package storage

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/record"
)

// columnSQLType 把粗粒度类型映射为方言的列类型。mysql 的唯一键列不能是 TEXT。
func columnSQLType(dialect string, t record.ColumnType, key bool) string {
	switch dialect {
	case connector.DriverPostgres:
		switch t {
		case record.TypeNumber:
			return "DOUBLE PRECISION"
		case record.TypeBoolean:
			return "BOOLEAN"
		}
		return "TEXT"
	case connector.DriverMySQL:
		switch t {
		case record.TypeNumber:
			return "DOUBLE"
		case record.TypeBoolean:
			return "BOOLEAN"
		}
		if key {
			return "VARCHAR(255)"
		}
		return "TEXT"
	default:
		switch t {
		case record.TypeNumber:
			return "NUMERIC"
		case record.TypeBoolean:
			return "BOOLEAN"
		}
		return "TEXT"
	}
}

// indexName 唯一索引名：idx_<table>_<col1>_<col2>
func indexName(table string, columns []string) string {
	return "idx_" + table + "_" + strings.Join(columns, "_")
}

func quote(db *gorm.DB, name string) string {
	var b strings.Builder
	db.Dialector.QuoteTo(&b, name)
	return b.String()
}

func quoteAll(db *gorm.DB, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(db, n)
	}
	return strings.Join(quoted, ", ")
}

func createTableSQL(db *gorm.DB, dialect, table string, schema record.Schema, keys map[string]bool) string {
	cols := schema.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(db, c) + " " + columnSQLType(dialect, schema[c], keys[c])
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(db, table), strings.Join(defs, ", "))
}

func addColumnSQL(db *gorm.DB, dialect, table, column string, t record.ColumnType, key bool) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		quote(db, table), quote(db, column), columnSQLType(dialect, t, key))
}

func createIndexSQL(db *gorm.DB, table string, columns []string) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
		quote(db, indexName(table, columns)), quote(db, table), quoteAll(db, columns))
}
