package fetcher

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

// 默认值
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultRetryAfterCap  = 60 * time.Second
	DefaultMaxPages       = 10
	DefaultMaxBodyBytes   = 10 << 20
	DefaultUserAgent      = "Mozilla/5.0 (compatible; harvest/1.0)"
	RotationRoundRobin    = "round_robin"
	RotationRandom        = "random"
	StopOnEmptyPage       = "empty"
	StopOnNextAbsent      = "next_absent"
	AuthBearer            = "bearer"
	AuthBasic             = "basic"
	defaultPaginationFrom = 1
)

// Config 抓取器的全局配置，端点未设置的项使用这里的值
//
//	fetcher:
//	  timeout: 30
//	  max_attempts: 3
//	  retry_after_cap: 60
//	  max_pages: 10
//	  network:
//	    proxies: ["http://proxy-1:3128"]
//	    user_agents: ["Mozilla/5.0 ..."]
//	    rotation: round_robin
type Config struct {
	TimeoutSeconds       float64 `mapstructure:"timeout"`
	MaxAttempts          int     `mapstructure:"max_attempts"`
	RetryAfterCapSeconds float64 `mapstructure:"retry_after_cap"`
	MaxPages             int     `mapstructure:"max_pages"`
	MaxBodyBytes         int64   `mapstructure:"max_body_bytes"`
	Network              Network `mapstructure:"network"`
}

// Network 出站身份池，每次尝试按 Rotation 选取代理与 User-Agent
type Network struct {
	Proxies    []string `mapstructure:"proxies"`
	UserAgents []string `mapstructure:"user_agents"`
	Rotation   string   `mapstructure:"rotation"`
}

func (c *Config) setDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeout.Seconds()
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryAfterCapSeconds == 0 {
		c.RetryAfterCapSeconds = DefaultRetryAfterCap.Seconds()
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Network.Rotation == "" {
		c.Network.Rotation = RotationRoundRobin
	}
}

func (c *Config) validate() error {
	if c.TimeoutSeconds < 0 || c.MaxAttempts < 0 || c.RetryAfterCapSeconds < 0 || c.MaxPages < 0 || c.MaxBodyBytes < 0 {
		return xerrors.Config("fetcher: timeout, max_attempts, retry_after_cap, max_pages and max_body_bytes must not be negative")
	}
	switch c.Network.Rotation {
	case RotationRoundRobin, RotationRandom:
	default:
		return xerrors.Config("fetcher: unknown rotation %q", c.Network.Rotation)
	}
	for _, p := range c.Network.Proxies {
		u, err := url.Parse(p)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return xerrors.Config("fetcher: invalid proxy %q", p)
		}
	}
	return nil
}

// Endpoint 一个数据源的请求描述
//
//	url: https://api.example.com/entry/{id}/history/
//	method: GET
//	headers: {Accept: application/json}
//	params: {id: 42, season: [2023, 2024]}
//	auth: {type: bearer, token: "${API_TOKEN}"}
//	pagination: {enabled: true, page_param: page, items_path: results, max_pages: 20}
type Endpoint struct {
	URL            string            `mapstructure:"url"`
	Method         string            `mapstructure:"method"`
	Headers        map[string]string `mapstructure:"headers"`
	Params         map[string]any    `mapstructure:"params"`
	Auth           *Auth             `mapstructure:"auth"`
	TimeoutSeconds float64           `mapstructure:"timeout"`
	Retry          Retry             `mapstructure:"retry"`
	Pagination     Pagination        `mapstructure:"pagination"`
}

// Auth 出站认证
type Auth struct {
	Type     string `mapstructure:"type"`
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Retry 重试策略，0 表示使用全局配置
type Retry struct {
	MaxAttempts          int     `mapstructure:"max_attempts"`
	RetryAfterCapSeconds float64 `mapstructure:"retry_after_cap"`
}

// Pagination 分页描述。
//
// 页码从 Start 开始逐页加一，直到：StopCondition 为 empty 时 ItemsPath 指向的列表为空
// （ItemsPath 为空时看整个文档），为 next_absent 时 NextPath 指向的值缺失或为假，
// 首页之后返回 404，或达到 MaxPages。
type Pagination struct {
	Enabled       bool   `mapstructure:"enabled"`
	PageParam     string `mapstructure:"page_param"`
	Start         *int   `mapstructure:"start"`
	PageSizeParam string `mapstructure:"page_size_param"`
	PageSize      int    `mapstructure:"page_size"`
	MaxPages      int    `mapstructure:"max_pages"`
	StopCondition string `mapstructure:"stop_condition"`
	ItemsPath     string `mapstructure:"items_path"`
	NextPath      string `mapstructure:"next_path"`
}

func (p *Pagination) start() int {
	if p.Start == nil {
		return defaultPaginationFrom
	}
	return *p.Start
}

func (p *Pagination) stopCondition() string {
	if p.StopCondition == "" {
		return StopOnEmptyPage
	}
	return p.StopCondition
}

func (e *Endpoint) method() string {
	if e.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(e.Method)
}

// Validate 检查端点配置，在数据源初始化时调用
func (e *Endpoint) Validate() error {
	if e == nil || strings.TrimSpace(e.URL) == "" {
		return xerrors.Config("fetcher: endpoint url is required")
	}
	switch e.method() {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return xerrors.Config("fetcher: unsupported method %q", e.Method)
	}
	if _, err := parseTemplate(e.URL); err != nil {
		return err
	}
	if e.Auth != nil {
		switch strings.ToLower(e.Auth.Type) {
		case AuthBearer:
			if e.Auth.Token == "" {
				return xerrors.Config("fetcher: bearer auth requires a token")
			}
		case AuthBasic:
			if e.Auth.Username == "" {
				return xerrors.Config("fetcher: basic auth requires a username")
			}
		default:
			return xerrors.Config("fetcher: unknown auth type %q", e.Auth.Type)
		}
	}
	if e.TimeoutSeconds < 0 || e.Retry.MaxAttempts < 0 || e.Retry.RetryAfterCapSeconds < 0 {
		return xerrors.Config("fetcher: timeout and retry settings must not be negative")
	}

	p := &e.Pagination
	if !p.Enabled {
		return nil
	}
	if p.PageParam == "" {
		return xerrors.Config("fetcher: pagination requires page_param")
	}
	if p.MaxPages < 0 || p.PageSize < 0 {
		return xerrors.Config("fetcher: pagination max_pages and page_size must not be negative")
	}
	switch p.stopCondition() {
	case StopOnEmptyPage:
	case StopOnNextAbsent:
		if p.NextPath == "" {
			return xerrors.Config("fetcher: stop_condition next_absent requires next_path")
		}
	default:
		return xerrors.Config("fetcher: unknown stop_condition %q", p.StopCondition)
	}
	return nil
}

// bodyMethod 这些方法把剩余参数编码为 JSON 请求体，其余方法作为查询参数
func bodyMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}
