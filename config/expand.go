package config

import (
	"os"
	"strings"
)

// ExpandEnv 展开字符串中的 ${VAR} 与 ${VAR:default} 占位符。
// 变量未设置或为空时使用默认值，没有默认值则替换为空串。
func ExpandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// ExpandEnvMap 返回展开了所有值的新 map
func ExpandEnvMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = ExpandEnv(v)
	}
	return out
}
