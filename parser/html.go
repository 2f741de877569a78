package parser

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// 字段输出格式
const (
	FormatText     = "text"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// Field 从选中的元素中提取一列
type Field struct {
	Name string `mapstructure:"name"`
	// Selector 相对于行元素的子选择器，为空时取行元素本身
	Selector string `mapstructure:"selector"`
	// Attribute 取属性值而不是文本
	Attribute string `mapstructure:"attribute"`
	// Absolute 把属性值按页面 URL 解析为绝对地址
	Absolute bool `mapstructure:"absolute"`
	// Format text（默认）、html（经过清洗的内部 HTML）或 markdown
	Format string `mapstructure:"format"`
}

type htmlParser struct {
	selector  string
	attribute string
	fields    []Field
	policy    *bluemonday.Policy
	markdown  *converter.Converter
}

func newHTMLParser(c *Config) (*htmlParser, error) {
	if c.Selector == "" {
		return nil, xerrors.Config("parser: html parser requires a selector")
	}
	for _, f := range c.Fields {
		if f.Name == "" {
			return nil, xerrors.Config("parser: html field without name")
		}
		switch f.Format {
		case "", FormatText, FormatHTML, FormatMarkdown:
		default:
			return nil, xerrors.Config("parser: unknown field format %q", f.Format)
		}
	}
	return &htmlParser{
		selector:  c.Selector,
		attribute: c.Attribute,
		fields:    c.Fields,
		policy:    bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}, nil
}

// Parse 每个匹配 selector 的元素一条记录；未配置 fields 时记录为 {"value": 文本或属性}
func (p *htmlParser) Parse(_ context.Context, page *fetcher.Page) ([]record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, parseErr("parse html: %v", err)
	}
	origin, _ := url.Parse(page.URL)

	var out []record.Record
	var firstErr error
	doc.Find(p.selector).Each(func(_ int, row *goquery.Selection) {
		if firstErr != nil {
			return
		}
		if len(p.fields) == 0 {
			out = append(out, record.Record{"value": p.value(row, Field{Attribute: p.attribute}, origin)})
			return
		}
		rec := make(record.Record, len(p.fields))
		for _, f := range p.fields {
			sel := row
			if f.Selector != "" {
				sel = row.Find(f.Selector).First()
			}
			if sel.Length() == 0 {
				continue
			}
			v, err := p.render(sel, f, origin, page.URL)
			if err != nil {
				firstErr = err
				return
			}
			if v != nil {
				rec[f.Name] = v
			}
		}
		out = append(out, rec)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (p *htmlParser) render(sel *goquery.Selection, f Field, origin *url.URL, pageURL string) (any, error) {
	switch f.Format {
	case FormatHTML:
		inner, err := sel.Html()
		if err != nil {
			return nil, parseErr("render html: %v", err)
		}
		return strings.TrimSpace(p.policy.Sanitize(inner)), nil
	case FormatMarkdown:
		inner, err := sel.Html()
		if err != nil {
			return nil, parseErr("render html: %v", err)
		}
		var md string
		if pageURL != "" {
			md, err = p.markdown.ConvertString(inner, converter.WithDomain(pageURL))
		} else {
			md, err = p.markdown.ConvertString(inner)
		}
		if err != nil {
			return nil, parseErr("convert markdown: %v", err)
		}
		return strings.TrimSpace(md), nil
	default:
		return p.value(sel, f, origin), nil
	}
}

// value 返回属性值或折叠空白后的文本，属性不存在时为 nil
func (p *htmlParser) value(sel *goquery.Selection, f Field, origin *url.URL) any {
	if f.Attribute == "" {
		return strings.Join(strings.Fields(sel.Text()), " ")
	}
	v, ok := sel.Attr(f.Attribute)
	if !ok {
		return nil
	}
	if f.Absolute && origin != nil {
		if ref, err := url.Parse(v); err == nil {
			return origin.ResolveReference(ref).String()
		}
	}
	return v
}
