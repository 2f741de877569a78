package fetcher

import (
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// parseTemplate 返回模板中的占位符名，模板必须是带 scheme 与 host 的绝对 URL
func parseTemplate(tmpl string) ([]string, error) {
	sample := placeholderRe.ReplaceAllString(tmpl, "x")
	u, err := url.Parse(sample)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, xerrors.Config("fetcher: url %q is not an absolute url", tmpl)
	}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names, nil
}

// Render 用参数替换 URL 模板中的 {name} 占位符。
//
// 被占位符消费的参数不会再出现在返回的剩余参数中；缺少占位符对应的参数是配置错误。
func Render(tmpl string, params map[string]string) (string, map[string]string, error) {
	names, err := parseTemplate(tmpl)
	if err != nil {
		return "", nil, err
	}
	rendered := tmpl
	for _, name := range names {
		v, ok := params[name]
		if !ok {
			return "", nil, xerrors.Wrapf(ErrInvalidRequest, "url placeholder {%s} has no value", name)
		}
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", url.PathEscape(v))
	}

	rest := make(map[string]string, len(params))
	for k, v := range params {
		if !slices.Contains(names, k) {
			rest[k] = v
		}
	}
	return rendered, rest, nil
}

// ExpandParams 把列表值参数展开为笛卡尔积，标量参数在每个组合中保持不变。
//
// 组合顺序确定：按参数名排序，排在前面的参数变化最慢。
func ExpandParams(params map[string]any) []map[string]string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, k := range keys {
		values := paramValues(params[k])
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]string, 0, len(combos)*len(values))
		for _, base := range combos {
			for _, v := range values {
				c := make(map[string]string, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func paramValues(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, record.Text(item))
		}
		return out
	case []string:
		return x
	case []int:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, record.Text(item))
		}
		return out
	default:
		return []string{record.Text(x)}
	}
}

// mergeParams 请求参数覆盖端点默认参数
func mergeParams(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
