package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvParser struct {
	delimiter rune
	columns   []string
}

func newCSVParser(c *Config) (*csvParser, error) {
	p := &csvParser{delimiter: ',', columns: c.Columns}
	if c.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(c.Delimiter)
		if size != len(c.Delimiter) || r == '"' || r == '\n' || r == '\r' {
			return nil, xerrors.Config("parser: invalid csv delimiter %q", c.Delimiter)
		}
		p.delimiter = r
	}
	return p, nil
}

// Parse 首行为表头；配置了 columns 时所有行都是数据
func (p *csvParser) Parse(_ context.Context, page *fetcher.Page) ([]record.Record, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(page.Body, utf8BOM)))
	r.Comma = p.delimiter
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header := p.columns
	var out []record.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, parseErr("read csv: %v", err)
		}
		if header == nil {
			header = row
			continue
		}
		rec := make(record.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
}
