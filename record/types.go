package record

import "sort"

// ColumnType 粗粒度列类型
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
)

// ParseColumnType 解析配置中的类型提示，未知值返回 false
func ParseColumnType(s string) (ColumnType, bool) {
	switch ColumnType(s) {
	case TypeText, TypeNumber, TypeBoolean:
		return ColumnType(s), true
	default:
		return "", false
	}
}

// InferType 推断单个值的类型，nil 返回空字符串表示未知
func InferType(v any) ColumnType {
	switch Normalize(v).(type) {
	case nil:
		return ""
	case bool:
		return TypeBoolean
	case int64, float64:
		return TypeNumber
	default:
		return TypeText
	}
}

// widen 合并两个推断结果，冲突时退化为 text
func widen(a, b ColumnType) ColumnType {
	switch {
	case a == "":
		return b
	case b == "", a == b:
		return a
	default:
		return TypeText
	}
}

// Schema 列名到类型的映射
type Schema map[string]ColumnType

// Columns 返回按字典序排列的列名
func (s Schema) Columns() []string {
	cols := make([]string, 0, len(s))
	for k := range s {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// InferSchema 从一批记录推断 schema：列为所有键的并集，类型取各值推断结果的合并。
// hints 中给出的类型优先；全为 nil 的列推断为 text。
func InferSchema(records []Record, hints map[string]ColumnType) Schema {
	s := make(Schema)
	for _, r := range records {
		for k, v := range r {
			s[k] = widen(s[k], InferType(v))
		}
	}
	for k, t := range s {
		if hint, ok := hints[k]; ok {
			s[k] = hint
		} else if t == "" {
			s[k] = TypeText
		}
	}
	return s
}
