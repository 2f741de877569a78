package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/cache"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/testkit"
	"github.com/ceyewan/harvest/xerrors"
)

type harness struct {
	fetcher Fetcher
	limiter ratelimit.Limiter
	breaker breaker.Breaker
	cache   cache.Cache
}

func newHarness(t *testing.T, cfg *Config, threshold uint32) *harness {
	t.Helper()
	limiter, err := ratelimit.New(&ratelimit.Config{MinDelay: 0, BaseDelay: 0, MaxDelay: 0.01})
	require.NoError(t, err)
	brk, err := breaker.New(&breaker.Config{FailureThreshold: threshold, CooldownSeconds: 60})
	require.NoError(t, err)
	c, err := cache.New(&cache.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	f, err := New(cfg, limiter, brk, WithCache(c), WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter(t)))
	require.NoError(t, err)
	return &harness{fetcher: f, limiter: limiter, breaker: brk, cache: c}
}

// recorder 记录服务端收到的请求
type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func (r *recorder) add(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.bodies = append(r.bodies, string(body))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func serve(t *testing.T, rec *recorder, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestURLTemplateConsumesPathParams(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]any{"ok": true}) })
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "history",
		Endpoint: &Endpoint{URL: srv.URL + "/entry/{id}/history/", Params: map[string]any{"id": 42, "season": "2024"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)

	got := rec.requests[0]
	assert.Equal(t, "/entry/42/history/", got.URL.Path)
	assert.Equal(t, "season=2024", got.URL.RawQuery)
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.JSONEq(t, `{"ok":true}`, string(res.Pages[0].Body))
}

func TestMissingPlaceholderIsConfigError(t *testing.T) {
	h := newHarness(t, nil, 5)
	_, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "history",
		Endpoint: &Endpoint{URL: "http://127.0.0.1:1/entry/{id}"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1, 2}) })
	h := newHarness(t, nil, 5)

	ctx := context.Background()
	first := &Request{Source: "teams", Endpoint: &Endpoint{URL: srv.URL + "/teams", Params: map[string]any{"b": 2, "a": 1}}, CacheTTL: time.Minute}
	res1, err := h.fetcher.Fetch(ctx, first)
	require.NoError(t, err)
	assert.False(t, res1.Pages[0].FromCache)

	// 参数顺序不同的同一逻辑请求
	second := &Request{Source: "teams", Endpoint: &Endpoint{URL: srv.URL + "/teams?a=1", Params: map[string]any{"b": 2}}, CacheTTL: time.Minute}
	res2, err := h.fetcher.Fetch(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.count())
	assert.True(t, res2.Pages[0].FromCache)
	assert.Equal(t, 1, res2.CacheHits)
	assert.Zero(t, res2.Attempts)
	assert.Equal(t, res1.Pages[0].Fingerprint, res2.Pages[0].Fingerprint)
	assert.Equal(t, res1.Pages[0].Body, res2.Pages[0].Body)
}

func TestZeroTTLDoesNotCache(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, nil, 5)

	req := &Request{Source: "teams", Endpoint: &Endpoint{URL: srv.URL}}
	for i := 0; i < 2; i++ {
		_, err := h.fetcher.Fetch(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, rec.count())
}

func TestPaginationStopsOnEmptyPage(t *testing.T) {
	pages := map[string][]string{"1": {"a", "b"}, "2": {"c"}, "3": {}}
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": pages[r.URL.Query().Get("page")]})
	})
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source: "items",
		Endpoint: &Endpoint{URL: srv.URL, Pagination: Pagination{
			Enabled: true, PageParam: "page", ItemsPath: "items", PageSizeParam: "size", PageSize: 2,
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rec.count())
	require.Len(t, res.Pages, 2)
	assert.Equal(t, "1", res.Pages[0].Params["page"])
	assert.Equal(t, "2", res.Pages[0].Params["size"])
	assert.JSONEq(t, `{"items":["c"]}`, string(res.Pages[1].Body))
}

func TestPaginationWithoutItemsPathStopsOnEmptyList(t *testing.T) {
	pages := map[string][]string{"1": {"a", "b"}, "2": {"c"}}
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		items := pages[page]
		if items == nil {
			items = []string{}
		}
		writeJSON(w, map[string]any{"items": items, "page": page})
	})
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "items",
		Endpoint: &Endpoint{URL: srv.URL, Pagination: Pagination{Enabled: true, PageParam: "page"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rec.count())
	require.Len(t, res.Pages, 2)
	assert.JSONEq(t, `{"items":["c"],"page":"2"}`, string(res.Pages[1].Body))
}

func TestPaginationNextAbsent(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("p"))
		writeJSON(w, map[string]any{
			"standings": map[string]any{"has_next": page < 2, "results": []int{page}},
		})
	})
	h := newHarness(t, nil, 5)

	start := 0
	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source: "league",
		Endpoint: &Endpoint{URL: srv.URL, Pagination: Pagination{
			Enabled: true, PageParam: "p", Start: &start, StopCondition: StopOnNextAbsent, NextPath: "standings.has_next",
		}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Pages, 3)
	assert.Equal(t, "0", rec.requests[0].URL.Query().Get("p"))
}

func TestPaginationEndsOnNotFoundAfterFirstPage(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "3" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, []int{1})
	})
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "pages",
		Endpoint: &Endpoint{URL: srv.URL, Pagination: Pagination{Enabled: true, PageParam: "page"}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Pages, 2)
	assert.Equal(t, breaker.StateClosed, h.breaker.State("pages").State)
}

func TestPaginationMaxPages(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, &Config{MaxPages: 4}, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "endless",
		Endpoint: &Endpoint{URL: srv.URL, Pagination: Pagination{Enabled: true, PageParam: "page"}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Pages, 4)
	assert.Equal(t, 4, rec.count())
}

func TestCartesianExpansion(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source: "matrix",
		Endpoint: &Endpoint{URL: srv.URL + "/league/{league}", Params: map[string]any{
			"league": []any{"a", "b"},
			"season": []any{2023, 2024},
			"lang":   "en",
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Pages, 4)

	var got []string
	for _, req := range rec.requests {
		got = append(got, req.URL.Path+"?"+req.URL.RawQuery)
	}
	assert.Equal(t, []string{
		"/league/a?lang=en&season=2023",
		"/league/a?lang=en&season=2024",
		"/league/b?lang=en&season=2023",
		"/league/b?lang=en&season=2024",
	}, got)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, []int{1})
	})
	h := newHarness(t, nil, 5)

	res, err := h.fetcher.Fetch(context.Background(), &Request{Source: "flaky", Endpoint: &Endpoint{URL: srv.URL}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)

	st := h.limiter.State("flaky")
	assert.Equal(t, 1, st.ConsecutiveSuccesses)
	assert.Equal(t, breaker.StateClosed, h.breaker.State("flaky").State)
}

func TestRetryExhaustionSurfacesTransient(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	h := newHarness(t, nil, 10)

	_, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "down",
		Endpoint: &Endpoint{URL: srv.URL, Retry: Retry{MaxAttempts: 4}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, xerrors.CodeTransient, xerrors.GetCode(err))
	assert.Equal(t, 4, rec.count())
	assert.EqualValues(t, 4, h.breaker.State("down").ConsecutiveFailures)
	assert.Equal(t, 4, h.limiter.State("down").ConsecutiveFailures)
}

func TestClientErrorNotRetried(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	h := newHarness(t, nil, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{Source: "denied", Endpoint: &Endpoint{URL: srv.URL}})
	assert.ErrorIs(t, err, ErrClient)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, h.limiter.State("denied").ConsecutiveFailures)
	assert.EqualValues(t, 1, h.breaker.State("denied").ConsecutiveFailures, "client errors count against the breaker")
}

func TestRateLimitedHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, []int{1})
	})
	h := newHarness(t, nil, 5)

	start := time.Now()
	res, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "throttled",
		Endpoint: &Endpoint{URL: srv.URL, Retry: Retry{RetryAfterCapSeconds: 0.05}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second, "retry-after is capped")
}

func TestOpenBreakerRejectsWithoutNetwork(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	h := newHarness(t, nil, 2)

	ep := &Endpoint{URL: srv.URL, Retry: Retry{MaxAttempts: 5}}
	_, err := h.fetcher.Fetch(context.Background(), &Request{Source: "broken", Endpoint: ep})
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	assert.Equal(t, 2, rec.count())

	_, err = h.fetcher.Fetch(context.Background(), &Request{Source: "broken", Endpoint: ep})
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, breaker.StateOpen, h.breaker.State("broken").State)
}

func TestPostSendsParamsAsJSONBody(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, nil, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{
		Source: "search",
		Endpoint: &Endpoint{
			URL: srv.URL + "/search/{kind}", Method: "post",
			Params: map[string]any{"kind": "teams", "q": "arsenal"},
			Auth:   &Auth{Type: AuthBearer, Token: "t0k"},
		},
	})
	require.NoError(t, err)

	got := rec.requests[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/search/teams", got.URL.Path)
	assert.Empty(t, got.URL.RawQuery)
	assert.JSONEq(t, `{"q":"arsenal"}`, rec.bodies[0])
	assert.Equal(t, "Bearer t0k", got.Header.Get("Authorization"))
}

func TestBasicAuthAndHeaders(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, nil, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{
		Source: "private",
		Endpoint: &Endpoint{
			URL:     srv.URL,
			Headers: map[string]string{"Accept": "application/json", "User-Agent": "custom/1"},
			Auth:    &Auth{Type: AuthBasic, Username: "u", Password: "p"},
		},
	})
	require.NoError(t, err)

	user, pass, ok := rec.requests[0].BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
	assert.Equal(t, "custom/1", rec.requests[0].Header.Get("User-Agent"))
	assert.Equal(t, "application/json", rec.requests[0].Header.Get("Accept"))
}

func TestUserAgentRoundRobin(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, &Config{Network: Network{UserAgents: []string{"ua-1", "ua-2"}}}, 5)

	for i := 0; i < 3; i++ {
		_, err := h.fetcher.Fetch(context.Background(), &Request{Source: "rot", Endpoint: &Endpoint{URL: srv.URL}})
		require.NoError(t, err)
	}
	var agents []string
	for _, r := range rec.requests {
		agents = append(agents, r.Header.Get("User-Agent"))
	}
	assert.Equal(t, []string{"ua-1", "ua-2", "ua-1"}, agents)
}

func TestRequestsGoThroughRotatedProxy(t *testing.T) {
	rec := &recorder{}
	proxy := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	h := newHarness(t, &Config{Network: Network{Proxies: []string{proxy.URL}}}, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{
		Source:   "proxied",
		Endpoint: &Endpoint{URL: "http://upstream.invalid/data"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "upstream.invalid", rec.requests[0].Host)
}

func TestBodySizeCap(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "0123456789abcdef")
	})
	h := newHarness(t, &Config{MaxBodyBytes: 8}, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{Source: "big", Endpoint: &Endpoint{URL: srv.URL}})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Equal(t, 1, rec.count())
}

func TestCancelledContextStopsRetries(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	h := newHarness(t, nil, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := h.fetcher.Fetch(ctx, &Request{Source: "slow", Endpoint: &Endpoint{URL: srv.URL}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, rec.count())
}

func TestFetchValidatesRequest(t *testing.T) {
	h := newHarness(t, nil, 5)

	_, err := h.fetcher.Fetch(context.Background(), &Request{Endpoint: &Endpoint{URL: "http://x"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.fetcher.Fetch(context.Background(), &Request{Source: "s", Endpoint: &Endpoint{}})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	assert.Equal(t, xerrors.CodeConfigInvalid, xerrors.GetCode(err))
}

func TestNewRequiresLimiterAndBreaker(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCustomHTTPClient(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"host": "` + r.URL.Host + `"}`)),
			Request:    r,
		}, nil
	})}
	limiter, err := ratelimit.New(&ratelimit.Config{MaxDelay: 0.01})
	require.NoError(t, err)
	brk, err := breaker.New(nil)
	require.NoError(t, err)
	f, err := New(nil, limiter, brk, WithHTTPClient(client))
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), &Request{Source: "offline", Endpoint: &Endpoint{URL: "http://stats.invalid/teams"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.JSONEq(t, `{"host": "stats.invalid"}`, string(res.Pages[0].Body))
}

func TestAttemptsWaitForLimiterDelay(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	limiter, err := ratelimit.New(&ratelimit.Config{BaseDelay: 0.1, MinDelay: 0.1, MaxDelay: 0.5})
	require.NoError(t, err)
	brk, err := breaker.New(&breaker.Config{FailureThreshold: 10, CooldownSeconds: 60})
	require.NoError(t, err)
	f, err := New(&Config{MaxAttempts: 3}, limiter, brk, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	start := time.Now()
	_, err = f.Fetch(context.Background(), &Request{Source: "throttled", Endpoint: &Endpoint{URL: srv.URL}})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, rec.count())
	// 100ms，失败后放大到 200ms，再到 400ms
	assert.GreaterOrEqual(t, elapsed, 650*time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, limiter.State("throttled").Delay)
}

func TestCancelledLimiterWaitCountsAsFailure(t *testing.T) {
	rec := &recorder{}
	srv := serve(t, rec, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, []int{1}) })
	limiter, err := ratelimit.New(&ratelimit.Config{BaseDelay: 5, MinDelay: 5, MaxDelay: 10})
	require.NoError(t, err)
	brk, err := breaker.New(&breaker.Config{FailureThreshold: 1, CooldownSeconds: 60})
	require.NoError(t, err)
	f, err := New(&Config{MaxAttempts: 1}, limiter, brk)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, &Request{Source: "slow", Endpoint: &Endpoint{URL: srv.URL}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rec.count(), "no request is sent before the delay elapses")

	// 等待中被取消的尝试计为一次失败，熔断名额被释放
	assert.Equal(t, breaker.StateOpen, brk.State("slow").State)
}
