// Package parser 把抓取到的原始页面解析为记录，并按配置做字段变换。
//
// 解析逐页进行：每个 fetcher.Page 独立解析后再拼接结果，分页响应不会被合并成一个文档。
// 支持 json（点路径提取）、csv 与 html（CSS 选择器）三种格式。
package parser

import (
	"context"
	"strings"

	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// 解析器类型
const (
	TypeJSON = "json"
	TypeCSV  = "csv"
	TypeHTML = "html"
)

// Parser 解析单个页面
type Parser interface {
	Parse(ctx context.Context, page *fetcher.Page) ([]record.Record, error)
}

// Config 解析配置
//
//	parser:
//	  type: json
//	  extract: $.standings.results[*]
//
//	parser:
//	  type: html
//	  selector: table.fixtures tr
//	  fields:
//	    - {name: home, selector: td.home}
//	    - {name: link, selector: a, attribute: href, absolute: true}
type Config struct {
	Type string `mapstructure:"type"`

	// json
	Extract string `mapstructure:"extract"`

	// csv
	Delimiter string   `mapstructure:"delimiter"`
	Columns   []string `mapstructure:"columns"`

	// html
	Selector  string  `mapstructure:"selector"`
	Attribute string  `mapstructure:"attribute"`
	Fields    []Field `mapstructure:"fields"`
}

// New 按类型创建解析器，类型为空时视为 json
func New(cfg *Config) (Parser, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	switch strings.ToLower(c.Type) {
	case "", TypeJSON:
		return &jsonParser{extract: c.Extract}, nil
	case TypeCSV:
		return newCSVParser(&c)
	case TypeHTML:
		return newHTMLParser(&c)
	default:
		return nil, xerrors.Config("parser: unknown type %q", c.Type)
	}
}

// ParsePages 逐页解析并拼接结果，错误中带上出错页面的 URL
func ParsePages(ctx context.Context, p Parser, pages []fetcher.Page) ([]record.Record, error) {
	var out []record.Record
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		records, err := p.Parse(ctx, &pages[i])
		if err != nil {
			return out, xerrors.Wrapf(err, "page %d (%s)", i+1, pages[i].URL)
		}
		out = append(out, records...)
	}
	return out, nil
}

func parseErr(format string, args ...any) error {
	return xerrors.Wrapf(ErrParse, format, args...)
}
