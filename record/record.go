// Package record 定义在解析、转换与存储之间流转的记录模型。
//
// Record 是列名到标量值的映射（string、int64、float64、bool、nil）。
// 存储层不解释记录语义，只关心列名、推断出的粗粒度类型和唯一键。
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record 一条记录，列顺序由 Columns 给出的字典序决定
type Record map[string]any

// IsEmpty 判断记录是否没有任何列
func (r Record) IsEmpty() bool { return len(r) == 0 }

// Columns 返回按字典序排列的列名
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Clone 浅拷贝记录
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key 按 columns 顺序拼出唯一键，任一列缺失或为 nil 时 ok 为 false
func (r Record) Key(columns []string) (key string, ok bool) {
	var b strings.Builder
	for i, c := range columns {
		v, present := r[c]
		if !present || v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(Text(v))
	}
	return b.String(), true
}

// DropEmpty 过滤掉空记录，返回新切片
func DropEmpty(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// UnionColumns 返回一批记录所有列名的并集，按字典序排列
func UnionColumns(records []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Dedupe 按唯一键去重，同一键保留最后一次出现的记录，并保持首次出现的位置。
// 缺少任一唯一键列的记录原样保留。columns 为空时不做任何处理。
func Dedupe(records []Record, columns []string) []Record {
	if len(columns) == 0 {
		return records
	}
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		key, ok := r.Key(columns)
		if !ok {
			out = append(out, r)
			continue
		}
		if i, dup := index[key]; dup {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Normalize 把任意值收敛为标量：整数统一为 int64，浮点为 float64，
// 时间为 RFC3339 字符串，嵌套的 map 与 slice 编码为 JSON 文本。
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uint64ToNumber(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uint64ToNumber(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func uint64ToNumber(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// NormalizeRecord 返回所有值都已标量化的新记录
func NormalizeRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Normalize(v)
	}
	return out
}

// Text 返回值的文本形式，用于文件导出与唯一键拼接
func Text(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
