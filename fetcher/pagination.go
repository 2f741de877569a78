package fetcher

import (
	"bytes"

	"github.com/ceyewan/harvest/internal/jsonpath"
)

// inspectPage 判断一页是否保留以及是否继续翻页。
//
// empty 条件下空页本身不保留；非 JSON 响应只能依据响应体是否为空判断。
func inspectPage(p *Pagination, body []byte) (keep, more bool) {
	doc, err := jsonpath.Decode(body)
	if err != nil {
		empty := len(bytes.TrimSpace(body)) == 0
		return !empty, !empty && p.stopCondition() == StopOnEmptyPage
	}

	if p.stopCondition() == StopOnNextAbsent {
		next, ok := jsonpath.Lookup(doc, p.NextPath)
		return true, ok && jsonpath.Truthy(next)
	}
	items, ok := pageItems(p, doc)
	if !ok || jsonpath.IsEmpty(items) {
		return false, false
	}
	return true, true
}

// pageItems 未配置 items_path 时，对象中唯一的列表字段视为本页条目（如 {"items": [...], "page": 2}）
func pageItems(p *Pagination, doc any) (any, bool) {
	if p.ItemsPath != "" {
		return jsonpath.Lookup(doc, p.ItemsPath)
	}
	obj, isObj := doc.(map[string]any)
	if !isObj {
		return doc, true
	}
	var list any
	lists := 0
	for _, v := range obj {
		if _, isList := v.([]any); isList {
			list = v
			lists++
		}
	}
	if lists == 1 {
		return list, true
	}
	return doc, true
}
