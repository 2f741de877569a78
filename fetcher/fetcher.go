// Package fetcher 是带韧性控制的 HTTP 抓取器。
//
// 一次 Fetch 依次完成：列表参数展开为笛卡尔积、URL 模板替换、计算请求指纹、
// 查询响应缓存、熔断器放行、限流等待、发出请求、按结果重试，以及分页。
// 每一页作为独立的 Page 返回，下游逐页解析，不拼接成一个大文档。
//
//	f, _ := fetcher.New(&cfg.Fetcher, limiter, brk, fetcher.WithCache(c), fetcher.WithLogger(logger))
//	res, err := f.Fetch(ctx, &fetcher.Request{Source: "teams", Endpoint: &src.Fetcher, CacheTTL: time.Hour})
//	for _, page := range res.Pages {
//		records, err := p.Parse(ctx, page.Body)
//	}
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/cache"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// Fetcher HTTP 抓取器
type Fetcher interface {
	// Fetch 抓取一个数据源的全部页面。
	// 出错时返回已经拿到的页面和错误，调用方应把整次抓取视为失败。
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// Request 一次抓取
type Request struct {
	// Source 数据源名，限流、熔断与缓存命名空间都按它隔离
	Source   string
	Endpoint *Endpoint
	// Params 覆盖 Endpoint.Params 中的同名参数
	Params map[string]any
	// CacheTTL 响应缓存时长，0 表示不读也不写缓存
	CacheTTL time.Duration
}

// Page 一个页面的原始响应
type Page struct {
	Params      map[string]string `json:"params"`
	URL         string            `json:"url"`
	Fingerprint string            `json:"fingerprint"`
	StatusCode  int               `json:"status_code"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"-"`
	FromCache   bool              `json:"from_cache"`
}

// Result 一次 Fetch 的结果
type Result struct {
	Source    string `json:"source"`
	Pages     []Page `json:"pages"`
	Attempts  int    `json:"attempts"`
	CacheHits int    `json:"cache_hits"`
}

type httpFetcher struct {
	cfg      Config
	limiter  ratelimit.Limiter
	breaker  breaker.Breaker
	cache    cache.Cache
	client   *http.Client
	rotator  *rotator
	logger   clog.Logger
	options  options
	attempts metrics.Counter
	duration metrics.Histogram
}

// New 创建抓取器，limiter 与 brk 必须非空
func New(cfg *Config, limiter ratelimit.Limiter, brk breaker.Breaker, opts ...Option) (Fetcher, error) {
	if limiter == nil || brk == nil {
		return nil, xerrors.Config("fetcher: rate limiter and circuit breaker are required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	client := o.client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = proxyFromContext
		var rt http.RoundTripper = transport
		if o.tracing {
			rt = otelhttp.NewTransport(rt)
		}
		client = &http.Client{Transport: rt}
	}

	return &httpFetcher{
		cfg:      c,
		limiter:  limiter,
		breaker:  brk,
		cache:    o.cache,
		client:   client,
		rotator:  newRotator(&c.Network),
		logger:   o.logger,
		options:  o,
		attempts: metrics.MustCounter(o.meter, metrics.MetricFetchAttempts, "HTTP fetch attempts by outcome."),
		duration: metrics.MustHistogram(o.meter, metrics.MetricFetchDuration, "HTTP fetch attempt duration.", metrics.WithUnit("s")),
	}, nil
}

func (f *httpFetcher) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Source == "" {
		return nil, xerrors.Wrap(ErrInvalidRequest, "source is required")
	}
	if err := req.Endpoint.Validate(); err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, f.options.tracer, trace.SpanFetch,
		attribute.String(trace.AttrSource, req.Source))
	defer span.End()

	res := &Result{Source: req.Source}
	for _, combo := range ExpandParams(mergeParams(req.Endpoint.Params, req.Params)) {
		rawURL, rest, err := Render(req.Endpoint.URL, combo)
		if err != nil {
			trace.MarkSpanError(span, err)
			return res, err
		}
		if err := f.fetchPages(ctx, req, rawURL, rest, res); err != nil {
			trace.MarkSpanError(span, err)
			return res, err
		}
	}

	f.logger.DebugContext(ctx, "fetch finished",
		clog.String("source", req.Source),
		clog.Int("pages", len(res.Pages)),
		clog.Int("attempts", res.Attempts),
		clog.Int("cache_hits", res.CacheHits))
	return res, nil
}

// fetchPages 抓取一个参数组合；未开启分页时只有一页
func (f *httpFetcher) fetchPages(ctx context.Context, req *Request, rawURL string, params map[string]string, res *Result) error {
	p := &req.Endpoint.Pagination
	if !p.Enabled {
		page, err := f.fetchPage(ctx, req, rawURL, params, res)
		if err != nil {
			return err
		}
		res.Pages = append(res.Pages, *page)
		return nil
	}

	maxPages := p.MaxPages
	if maxPages == 0 {
		maxPages = f.cfg.MaxPages
	}
	for i := 0; i < maxPages; i++ {
		pageParams := make(map[string]string, len(params)+2)
		for k, v := range params {
			pageParams[k] = v
		}
		pageParams[p.PageParam] = strconv.Itoa(p.start() + i)
		if p.PageSizeParam != "" && p.PageSize > 0 {
			pageParams[p.PageSizeParam] = strconv.Itoa(p.PageSize)
		}

		page, err := f.fetchPage(ctx, req, rawURL, pageParams, res)
		if err != nil {
			var se *StatusError
			if i > 0 && errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				f.logger.DebugContext(ctx, "pagination ended with not found",
					clog.String("source", req.Source), clog.Int("page", p.start()+i))
				return nil
			}
			return err
		}

		keep, more := inspectPage(p, page.Body)
		if keep {
			res.Pages = append(res.Pages, *page)
		}
		if !more {
			return nil
		}
	}

	f.logger.InfoContext(ctx, "pagination stopped at max_pages",
		clog.String("source", req.Source), clog.Int("max_pages", maxPages))
	return nil
}

// fetchPage 抓取单页：缓存命中直接返回，否则在熔断与限流门控下发起请求并按需重试
func (f *httpFetcher) fetchPage(ctx context.Context, req *Request, rawURL string, params map[string]string, res *Result) (*Page, error) {
	method := req.Endpoint.method()
	page := &Page{
		Params:      params,
		URL:         requestURL(method, rawURL, params),
		Fingerprint: Fingerprint(method, rawURL, params),
	}

	if entry := f.lookupCache(ctx, req, page.Fingerprint); entry != nil {
		res.CacheHits++
		page.StatusCode = entry.StatusCode
		page.ContentType = entry.ContentType
		page.Body = entry.Payload
		page.FromCache = true
		return page, nil
	}

	maxAttempts := req.Endpoint.Retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = f.cfg.MaxAttempts
	}
	retryAfterCap := seconds(req.Endpoint.Retry.RetryAfterCapSeconds, f.cfg.RetryAfterCapSeconds)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done, err := f.breaker.Allow(req.Source)
		if err != nil {
			f.logger.WarnContext(ctx, "request rejected by open circuit",
				clog.String("source", req.Source),
				clog.String("url", page.URL))
			return nil, err
		}
		// 通过熔断后才等待限流间隔，重试之间同样生效
		if err := f.limiter.Wait(ctx, req.Source); err != nil {
			done(false)
			lastErr = xerrors.Wrap(err, "wait for rate limiter")
			break
		}

		resp, err := f.attempt(ctx, req, method, rawURL, params, attempt)
		res.Attempts++
		// 404 说明远端正常响应，只是资源不存在
		success := err == nil || isNotFound(err)
		f.limiter.Report(req.Source, success)
		done(success)

		if err == nil {
			page.StatusCode = resp.status
			page.ContentType = resp.contentType
			page.Body = resp.body
			f.storeCache(ctx, req, page)
			return page, nil
		}

		lastErr = err
		if ctx.Err() != nil || !retryable(err) || attempt == maxAttempts {
			break
		}

		wait := time.Duration(0)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			wait = min(se.RetryAfter, retryAfterCap)
		}
		f.logger.WarnContext(ctx, "fetch attempt failed, retrying",
			clog.String("source", req.Source),
			clog.String("url", page.URL),
			clog.Int("attempt", attempt),
			clog.Duration("retry_after", wait),
			clog.Error(err))
		if err := sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	if !isNotFound(lastErr) {
		f.logger.ErrorContext(ctx, "fetch failed",
			clog.String("source", req.Source),
			clog.String("url", page.URL),
			clog.ErrorWithCode(lastErr, xerrors.GetCode(lastErr)))
	}
	return nil, lastErr
}

func (f *httpFetcher) lookupCache(ctx context.Context, req *Request, fp string) *cache.Entry {
	if f.cache == nil || req.CacheTTL <= 0 {
		return nil
	}
	entry, err := f.cache.Get(ctx, req.Source, fp)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			f.logger.WarnContext(ctx, "cache read failed", clog.String("source", req.Source), clog.Error(err))
		}
		return nil
	}
	return entry
}

// storeCache 写缓存失败只记录日志，不影响本次抓取
func (f *httpFetcher) storeCache(ctx context.Context, req *Request, page *Page) {
	if f.cache == nil || req.CacheTTL <= 0 {
		return
	}
	err := f.cache.Set(ctx, req.Source, &cache.Entry{
		Fingerprint: page.Fingerprint,
		URL:         page.URL,
		StatusCode:  page.StatusCode,
		ContentType: page.ContentType,
		Payload:     page.Body,
		StoredAt:    time.Now(),
		TTL:         req.CacheTTL,
	})
	if err != nil {
		f.logger.WarnContext(ctx, "cache write failed", clog.String("source", req.Source), clog.Error(err))
	}
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return errors.Is(err, ErrTransient)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func seconds(v, fallback float64) time.Duration {
	if v == 0 {
		v = fallback
	}
	return time.Duration(v * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
