package parser

import (
	"context"

	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/internal/jsonpath"
	"github.com/ceyewan/harvest/record"
)

type jsonParser struct {
	extract string
}

// Parse 取出 extract 指向的值：列表中的对象各成一条记录，
// 标量元素记为 {"value": v}，单个对象就是一条记录。路径不存在时没有记录。
func (p *jsonParser) Parse(_ context.Context, page *fetcher.Page) ([]record.Record, error) {
	doc, err := jsonpath.Decode(page.Body)
	if err != nil {
		return nil, parseErr("decode json: %v", err)
	}
	v, ok := jsonpath.Lookup(doc, p.extract)
	if !ok {
		return nil, nil
	}

	switch x := v.(type) {
	case []any:
		out := make([]record.Record, 0, len(x))
		for _, item := range x {
			out = append(out, toRecord(item))
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return []record.Record{toRecord(x)}, nil
	}
}

func toRecord(v any) record.Record {
	if m, ok := v.(map[string]any); ok {
		return record.Record(m)
	}
	return record.Record{"value": v}
}
