package fetcher

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

var (
	// ErrTransient 网络错误、超时或 5xx，重试耗尽后返回
	ErrTransient = xerrors.WithCode(xerrors.Wrap(xerrors.ErrUnavailable, "fetcher: transient failure"), xerrors.CodeTransient)

	// ErrRateLimited 远端返回 429
	ErrRateLimited = xerrors.WithCode(xerrors.Wrap(xerrors.ErrUnavailable, "fetcher: rate limited"), xerrors.CodeRateLimited)

	// ErrClient 429 以外的 4xx，不重试
	ErrClient = xerrors.WithCode(xerrors.New("fetcher: client error"), xerrors.CodeClient)

	// ErrBodyTooLarge 响应体超过上限
	ErrBodyTooLarge = xerrors.New("fetcher: response body too large")

	// ErrInvalidRequest 请求或端点配置不合法
	ErrInvalidRequest = xerrors.Wrap(xerrors.ErrInvalidInput, "fetcher: invalid request")
)

// StatusError 非 2xx 响应
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap 按状态码归类到 ErrRateLimited、ErrClient 或 ErrTransient
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return ErrClient
	default:
		return ErrTransient
	}
}

// Retryable 429 与 5xx 可重试
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
