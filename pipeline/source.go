package pipeline

import (
	"regexp"
	"strings"
	"time"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/config"
	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/parser"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/storage"
	"github.com/ceyewan/harvest/xerrors"
)

// 数据源类型
const (
	KindAPI  = "api"
	KindCSV  = "csv"
	KindHTML = "html"
)

var sourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Source 一个数据源的声明式配置
//
//	sources:
//	  - name: standings
//	    type: api
//	    schedule: "@every 15m"
//	    timeout: 120
//	    fetcher:
//	      url: https://api.example.com/leagues/{league}/standings
//	      params: {league: [39, 140]}
//	    cache: {ttl_seconds: 3600}
//	    rate_limiter: {base_delay: 1}
//	    circuit_breaker: {failure_threshold: 3}
//	    parser: {extract: $.standings[*]}
//	    transform:
//	      - {operation: rename, mapping: {team_id: id}}
//	    storage:
//	      - {type: relational, table_or_path: standings, unique_columns: [league, id]}
type Source struct {
	Name    string `mapstructure:"name" json:"name"`
	Type    string `mapstructure:"type" json:"type"`
	Enabled *bool  `mapstructure:"enabled" json:"enabled,omitempty"`

	// Schedule 触发间隔，形如 "15m" 或 "@every 15m"；为空时只能手动触发
	Schedule string `mapstructure:"schedule" json:"schedule,omitempty"`

	// TimeoutSeconds 单次运行的截止时间，0 表示使用 runner 的默认值
	TimeoutSeconds float64 `mapstructure:"timeout" json:"timeout,omitempty"`

	Fetcher        fetcher.Endpoint    `mapstructure:"fetcher" json:"-"`
	Cache          SourceCache         `mapstructure:"cache" json:"cache"`
	RateLimiter    *ratelimit.Override `mapstructure:"rate_limiter" json:"rate_limiter,omitempty"`
	CircuitBreaker *breaker.Config     `mapstructure:"circuit_breaker" json:"circuit_breaker,omitempty"`
	Parser         parser.Config       `mapstructure:"parser" json:"-"`
	Transform      []parser.Step       `mapstructure:"transform" json:"-"`
	Storage        []storage.Target    `mapstructure:"storage" json:"storage"`
}

// SourceCache 数据源的缓存设置，TTLSeconds 为 nil 时使用全局默认值，0 表示不缓存
type SourceCache struct {
	TTLSeconds *int `mapstructure:"ttl_seconds" json:"ttl_seconds,omitempty"`
}

// IsEnabled 未显式关闭即启用
func (s *Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// kind 类型为空时按 api 处理
func (s *Source) kind() string {
	if s.Type == "" {
		return KindAPI
	}
	return strings.ToLower(s.Type)
}

// parserType 数据源类型决定默认的解析格式
func (s *Source) parserType() (string, error) {
	want := map[string]string{
		KindAPI:  parser.TypeJSON,
		KindCSV:  parser.TypeCSV,
		KindHTML: parser.TypeHTML,
	}[s.kind()]
	if want == "" {
		return "", xerrors.Config("source %s: unknown type %q", s.Name, s.Type)
	}
	if s.Parser.Type != "" && !strings.EqualFold(s.Parser.Type, want) {
		return "", xerrors.Config("source %s: parser type %q does not match source type %q", s.Name, s.Parser.Type, s.kind())
	}
	return want, nil
}

// expandEnv 替换 url、请求头与认证信息中的 ${VAR} 占位符
func (s *Source) expandEnv() {
	s.Fetcher.URL = config.ExpandEnv(s.Fetcher.URL)
	s.Fetcher.Headers = config.ExpandEnvMap(s.Fetcher.Headers)
	if a := s.Fetcher.Auth; a != nil {
		expanded := *a
		expanded.Token = config.ExpandEnv(a.Token)
		expanded.Username = config.ExpandEnv(a.Username)
		expanded.Password = config.ExpandEnv(a.Password)
		s.Fetcher.Auth = &expanded
	}
}

// ParseSchedule 解析触发间隔，支持 Go duration 与 "@every <duration>"
func ParseSchedule(s string) (time.Duration, error) {
	expr := strings.TrimSpace(s)
	expr = strings.TrimSpace(strings.TrimPrefix(expr, "@every"))
	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, xerrors.Config("invalid schedule %q: %v", s, err)
	}
	if d <= 0 {
		return 0, xerrors.Config("invalid schedule %q: interval must be positive", s)
	}
	return d, nil
}
