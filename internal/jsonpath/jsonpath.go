// Package jsonpath 在解码后的 JSON 文档上按点路径取值，供分页判断与 JSON 解析共用。
//
// 支持的语法是 JSONPath 的一个小子集：可选的 "$." 前缀、以点分隔的键、
// 数字下标（"items.0.id"）以及表示"该键下的列表"的 "[*]" 后缀（"standings.results[*]"）。
package jsonpath

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Decode 解码 JSON，数字保留为 json.Number 以免大整数丢精度
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Split 把路径拆成段，空路径或 "$" 返回 nil（表示整个文档）
func Split(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSuffix(p, "[*]")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lookup 返回路径指向的值；任何一段不存在时 ok 为 false
func Lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range Split(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// IsEmpty 判断值是否为空：nil、空列表、空对象、空串
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case string:
		return x == ""
	default:
		return false
	}
}

// Truthy 判断"下一页"类字段是否表示还有后续：false、0、空值都视为没有
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0
	default:
		return !IsEmpty(v)
	}
}
