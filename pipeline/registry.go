package pipeline

import (
	"sort"
	"time"

	"github.com/ceyewan/harvest/parser"
	"github.com/ceyewan/harvest/xerrors"
)

// entry 一个已编译的数据源：配置在启动时校验一次，解析器与变换器随之创建
type entry struct {
	source      Source
	parser      parser.Parser
	transformer *parser.Transformer
	interval    time.Duration
	cacheTTL    time.Duration
}

// Registry 数据源名到已编译数据源的映射，创建后只读
type Registry struct {
	entries map[string]*entry
	names   []string
}

// NewRegistry 校验并编译全部数据源。
//
// 任何一个数据源配置错误都会让构建失败，错误带 CONFIG_INVALID 码；
// enabled: false 的数据源同样被校验和登记，只是不会被调度。
// defaultCacheTTL 用于未配置 cache.ttl_seconds 的数据源。
func NewRegistry(sources []Source, defaultCacheTTL time.Duration) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry, len(sources))}
	for i := range sources {
		e, err := compile(sources[i], defaultCacheTTL)
		if err != nil {
			return nil, err
		}
		if _, dup := r.entries[e.source.Name]; dup {
			return nil, xerrors.Config("source %s: duplicate name", e.source.Name)
		}
		r.entries[e.source.Name] = e
		r.names = append(r.names, e.source.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func compile(src Source, defaultCacheTTL time.Duration) (*entry, error) {
	if !sourceNamePattern.MatchString(src.Name) {
		return nil, xerrors.Config("source name %q is invalid", src.Name)
	}
	if src.TimeoutSeconds < 0 {
		return nil, xerrors.Config("source %s: timeout must not be negative", src.Name)
	}
	src.expandEnv()

	if err := src.Fetcher.Validate(); err != nil {
		return nil, xerrors.Wrapf(err, "source %s", src.Name)
	}
	for i := range src.Storage {
		if err := src.Storage[i].Validate(); err != nil {
			return nil, xerrors.Wrapf(err, "source %s", src.Name)
		}
	}
	if len(src.Storage) == 0 {
		return nil, xerrors.Config("source %s: at least one storage target is required", src.Name)
	}

	e := &entry{source: src, cacheTTL: defaultCacheTTL}

	typ, err := src.parserType()
	if err != nil {
		return nil, err
	}
	pcfg := src.Parser
	pcfg.Type = typ
	// JSON 分页未指定 items_path 时，用解析的 extract 路径判断空页
	if pg := &e.source.Fetcher.Pagination; typ == parser.TypeJSON && pg.Enabled && pg.ItemsPath == "" {
		pg.ItemsPath = pcfg.Extract
	}
	if e.parser, err = parser.New(&pcfg); err != nil {
		return nil, xerrors.Wrapf(err, "source %s", src.Name)
	}
	if e.transformer, err = parser.NewTransformer(src.Transform); err != nil {
		return nil, xerrors.Wrapf(err, "source %s", src.Name)
	}

	if src.Schedule != "" {
		if e.interval, err = ParseSchedule(src.Schedule); err != nil {
			return nil, xerrors.Wrapf(err, "source %s", src.Name)
		}
	}
	if ttl := src.Cache.TTLSeconds; ttl != nil {
		if *ttl < 0 {
			return nil, xerrors.Config("source %s: cache ttl_seconds must not be negative", src.Name)
		}
		e.cacheTTL = time.Duration(*ttl) * time.Second
	}
	return e, nil
}

func (r *Registry) get(name string) (*entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names 按名称排序的全部数据源
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Enabled 按名称排序的已启用数据源
func (r *Registry) Enabled() []string {
	var out []string
	for _, name := range r.names {
		if r.entries[name].source.IsEnabled() {
			out = append(out, name)
		}
	}
	return out
}

// Source 返回数据源配置的副本
func (r *Registry) Source(name string) (Source, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Source{}, false
	}
	return e.source, true
}

// Len 数据源数量
func (r *Registry) Len() int { return len(r.names) }
