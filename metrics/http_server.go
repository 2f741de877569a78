package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/harvest/xerrors"
)

const (
	MetricHTTPServerRequestTotal    = "harvest_http_requests_total"
	MetricHTTPServerDurationSeconds = "harvest_http_request_duration_seconds"
)

var defaultHTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPServerMetrics 记录 Admin API 的请求数与耗时
type HTTPServerMetrics struct {
	service      string
	requestTotal Counter
	duration     Histogram
}

// NewHTTPServerMetrics 在 m 上注册 HTTP 服务端指标
func NewHTTPServerMetrics(m Meter, service string) (*HTTPServerMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}

	counter, err := m.Counter(MetricHTTPServerRequestTotal, "Total number of HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request counter")
	}
	duration, err := m.Histogram(MetricHTTPServerDurationSeconds, "HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(defaultHTTPDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request duration histogram")
	}

	return &HTTPServerMetrics{service: service, requestTotal: counter, duration: duration}, nil
}

// Observe 记录一次请求，nil 接收者为空操作
func (m *HTTPServerMetrics) Observe(ctx context.Context, method string, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	safeMethod := strings.ToUpper(strings.TrimSpace(method))
	if safeMethod == "" {
		safeMethod = http.MethodGet
	}
	safeRoute := strings.TrimSpace(route)
	if safeRoute == "" {
		safeRoute = UnknownRoute
	}

	labels := []Label{
		L(LabelService, m.service),
		L(LabelOperation, OperationHTTPServer),
		L(LabelMethod, safeMethod),
		L(LabelRoute, safeRoute),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}
	m.requestTotal.Inc(ctx, labels...)
	m.duration.Record(ctx, duration.Seconds(), labels...)
}
