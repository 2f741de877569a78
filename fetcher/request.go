package fetcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

type response struct {
	status      int
	contentType string
	body        []byte
}

// attempt 发出一次请求，非 2xx 以 *StatusError 返回
func (f *httpFetcher) attempt(ctx context.Context, req *Request, method, rawURL string, params map[string]string, n int) (*response, error) {
	ep := req.Endpoint
	target := requestURL(method, rawURL, params)
	id := f.rotator.pick()

	actx, cancel := context.WithTimeout(ctx, seconds(ep.TimeoutSeconds, f.cfg.TimeoutSeconds))
	defer cancel()
	actx = withProxy(actx, id.proxy)
	actx, span := trace.StartClientSpan(actx, f.options.tracer, trace.SpanFetchAttempt,
		attribute.String(trace.AttrSource, req.Source),
		attribute.Int(trace.AttrAttempt, n),
		attribute.String(trace.AttrHTTPMethod, method),
		attribute.String(trace.AttrHTTPURL, target))
	defer span.End()

	httpReq, err := newHTTPRequest(actx, method, rawURL, params)
	if err != nil {
		return nil, err
	}
	for k, v := range ep.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", id.userAgent)
	}
	setAuth(httpReq, ep.Auth)

	start := time.Now()
	resp, err := f.do(httpReq, method, target)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.status
	}
	var se *StatusError
	if xerrors.As(err, &se) {
		status = se.StatusCode
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		trace.MarkSpanError(span, err)
	}
	span.SetAttributes(attribute.Int(trace.AttrHTTPStatus, status))
	f.attempts.Inc(ctx,
		metrics.L(metrics.LabelSource, req.Source),
		metrics.L(metrics.LabelOutcome, outcome),
		metrics.L(metrics.LabelStatusClass, metrics.HTTPStatusClass(status)))
	f.duration.Record(ctx, elapsed.Seconds(), metrics.L(metrics.LabelSource, req.Source))
	return resp, err
}

func (f *httpFetcher) do(httpReq *http.Request, method, target string) (*response, error) {
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransient, method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransient, target, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, xerrors.Wrapf(ErrBodyTooLarge, "%s exceeds %d bytes", target, f.cfg.MaxBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return &response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: body}, nil
}

// requestURL 查询类方法把参数合并进查询串，URL 中已有的参数保留
func requestURL(method, rawURL string, params map[string]string) string {
	if bodyMethod(method) || len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func newHTTPRequest(ctx context.Context, method, rawURL string, params map[string]string) (*http.Request, error) {
	if !bodyMethod(method) {
		return http.NewRequestWithContext(ctx, method, requestURL(method, rawURL, params), nil)
	}

	var body io.Reader
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, xerrors.Wrap(err, "encode request body")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func setAuth(req *http.Request, auth *Auth) {
	if auth == nil {
		return
	}
	switch strings.ToLower(auth.Type) {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		req.Header.Set("Authorization", "Basic "+cred)
	}
}

// parseRetryAfter 支持秒数与 HTTP 日期两种格式，无法解析时返回 0
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
