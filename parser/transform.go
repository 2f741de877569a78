package parser

import (
	"regexp"
	"sort"

	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// 变换操作
const (
	OpRename   = "rename"
	OpAddField = "add_field"
	OpFlatten  = "flatten"
	OpDrop     = "drop"
	OpSelect   = "select"
)

// Step 一个变换步骤
//
//	transform:
//	  - {operation: flatten}
//	  - {operation: rename, mapping: {entry_name: team}}
//	  - {operation: add_field, field: source_url, value: "https://example.com/entry/{id}"}
//	  - {operation: select, fields: [id, team, total]}
type Step struct {
	Operation string            `mapstructure:"operation"`
	Mapping   map[string]string `mapstructure:"mapping"`
	Field     string            `mapstructure:"field"`
	Value     any               `mapstructure:"value"`
	Fields    []string          `mapstructure:"fields"`
	Separator string            `mapstructure:"separator"`
}

var fieldRefRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Transformer 依次对记录执行变换步骤
type Transformer struct {
	steps []Step
}

// NewTransformer 校验并创建变换器
func NewTransformer(steps []Step) (*Transformer, error) {
	for i, s := range steps {
		switch s.Operation {
		case OpRename:
			if len(s.Mapping) == 0 {
				return nil, xerrors.Config("parser: transform step %d: rename requires mapping", i+1)
			}
		case OpAddField:
			if s.Field == "" {
				return nil, xerrors.Config("parser: transform step %d: add_field requires field", i+1)
			}
		case OpDrop, OpSelect:
			if len(s.Fields) == 0 {
				return nil, xerrors.Config("parser: transform step %d: %s requires fields", i+1, s.Operation)
			}
		case OpFlatten:
		default:
			return nil, xerrors.Config("parser: transform step %d: unknown operation %q", i+1, s.Operation)
		}
	}
	return &Transformer{steps: steps}, nil
}

// Apply 返回变换后的新记录，输入不被修改
func (t *Transformer) Apply(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		cur := r.Clone()
		for _, s := range t.steps {
			cur = s.apply(cur)
		}
		out[i] = cur
	}
	return out
}

func (s *Step) apply(r record.Record) record.Record {
	switch s.Operation {
	case OpRename:
		out := make(record.Record, len(r))
		for k, v := range r {
			if to, ok := s.Mapping[k]; ok {
				k = to
			}
			out[k] = v
		}
		return out
	case OpAddField:
		r[s.Field] = s.value(r)
		return r
	case OpFlatten:
		sep := s.Separator
		if sep == "" {
			sep = "_"
		}
		out := make(record.Record, len(r))
		flatten(out, "", sep, r)
		return out
	case OpDrop:
		for _, f := range s.Fields {
			delete(r, f)
		}
		return r
	case OpSelect:
		out := make(record.Record, len(s.Fields))
		for _, f := range s.Fields {
			if v, ok := r[f]; ok {
				out[f] = v
			}
		}
		return out
	default:
		return r
	}
}

// value 字符串值中的 {field} 用记录中的字段替换，其它类型原样返回
func (s *Step) value(r record.Record) any {
	str, ok := s.Value.(string)
	if !ok {
		return s.Value
	}
	return fieldRefRe.ReplaceAllStringFunc(str, func(m string) string {
		return record.Text(r[m[1:len(m)-1]])
	})
}

func flatten(dst record.Record, prefix, sep string, src map[string]any) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + sep + k
		}
		switch v := src[k].(type) {
		case map[string]any:
			flatten(dst, name, sep, v)
		case record.Record:
			flatten(dst, name, sep, v)
		default:
			dst[name] = v
		}
	}
}
