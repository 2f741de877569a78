package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// 后端类型
const (
	KindRelational = "relational"
	KindFile       = "file"
)

// 写入模式
const (
	ModeUpsert    = "upsert"
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// 文件格式
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Target 描述一批记录写到哪里、以什么方式写
//
//	storage:
//	  - type: relational
//	    table_or_path: standings
//	    unique_columns: [season, team_id]
//	    column_types: {points: number}
//	  - type: file
//	    table_or_path: exports/standings.jsonl
type Target struct {
	Type          string            `mapstructure:"type" json:"type"`
	TableOrPath   string            `mapstructure:"table_or_path" json:"table_or_path"`
	UniqueColumns []string          `mapstructure:"unique_columns" json:"unique_columns,omitempty"`
	ColumnTypes   map[string]string `mapstructure:"column_types" json:"column_types,omitempty"`
	Mode          string            `mapstructure:"mode" json:"mode,omitempty"`
	Format        string            `mapstructure:"format" json:"format,omitempty"`
}

// Identity 形如 "relational:standings"，用于日志与指标
func (t *Target) Identity() string {
	return t.Type + ":" + t.TableOrPath
}

// EffectiveMode 未配置时关系型默认 upsert（无唯一键时等价于 append），文件默认 overwrite
func (t *Target) EffectiveMode() string {
	if t.Mode != "" {
		return t.Mode
	}
	if t.Type == KindFile {
		return ModeOverwrite
	}
	if len(t.UniqueColumns) == 0 {
		return ModeAppend
	}
	return ModeUpsert
}

// EffectiveFormat 文件格式，未配置时由扩展名决定，默认 csv
func (t *Target) EffectiveFormat() string {
	if t.Format != "" {
		return t.Format
	}
	switch strings.ToLower(filepath.Ext(t.TableOrPath)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// Hints 返回已解析的列类型提示
func (t *Target) Hints() map[string]record.ColumnType {
	if len(t.ColumnTypes) == 0 {
		return nil
	}
	out := make(map[string]record.ColumnType, len(t.ColumnTypes))
	for col, s := range t.ColumnTypes {
		if ct, ok := record.ParseColumnType(s); ok {
			out[col] = ct
		}
	}
	return out
}

// Validate 检查目标配置，任何一处不合法都返回配置错误
func (t *Target) Validate() error {
	switch t.Type {
	case KindRelational:
		if t.TableOrPath == "" {
			return xerrors.Config("storage target %q: table name is required", t.Type)
		}
		if !tableNamePattern.MatchString(t.TableOrPath) {
			return xerrors.Config("storage target %q: invalid table name %q", t.Type, t.TableOrPath)
		}
		if t.Format != "" {
			return xerrors.Config("storage target %s: format applies to file targets only", t.Identity())
		}
	case KindFile:
		if t.TableOrPath == "" {
			return xerrors.Config("storage target %q: file path is required", t.Type)
		}
		switch t.EffectiveFormat() {
		case FormatCSV, FormatJSONL:
		default:
			return xerrors.Config("storage target %s: unsupported format %q", t.Identity(), t.Format)
		}
	case "":
		return xerrors.Config("storage target %q: type is required", t.TableOrPath)
	default:
		return xerrors.Config("storage target %q: unsupported type %q", t.TableOrPath, t.Type)
	}

	switch t.EffectiveMode() {
	case ModeUpsert:
		if len(t.UniqueColumns) == 0 {
			return xerrors.Config("storage target %s: upsert mode requires unique_columns", t.Identity())
		}
	case ModeAppend, ModeOverwrite:
	default:
		return xerrors.Config("storage target %s: unsupported mode %q", t.Identity(), t.Mode)
	}

	seen := make(map[string]struct{}, len(t.UniqueColumns))
	for _, col := range t.UniqueColumns {
		if err := validateColumn(col); err != nil {
			return xerrors.Config("storage target %s: unique column: %v", t.Identity(), err)
		}
		if _, dup := seen[col]; dup {
			return xerrors.Config("storage target %s: duplicate unique column %q", t.Identity(), col)
		}
		seen[col] = struct{}{}
	}
	for col, s := range t.ColumnTypes {
		if _, ok := record.ParseColumnType(s); !ok {
			return xerrors.Config("storage target %s: column %q has unknown type %q", t.Identity(), col, s)
		}
	}
	return nil
}

// validateColumn 列名来自数据本身，只拒绝无法安全引用的名字
func validateColumn(name string) error {
	if name == "" {
		return xerrors.New("empty column name")
	}
	if len(name) > 64 {
		return fmt.Errorf("column name %q exceeds 64 characters", name)
	}
	if strings.ContainsAny(name, "\"`\x00") {
		return fmt.Errorf("column name %q contains a quote or NUL character", name)
	}
	return nil
}
