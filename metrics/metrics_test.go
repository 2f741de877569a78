package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, Discard(), m)
}

func TestMeterExportsPrometheus(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "harvest-test", Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx := context.Background()
	counter, err := m.Counter(MetricFetchAttempts, "fetch attempts")
	require.NoError(t, err)
	counter.Inc(ctx, L(LabelSource, "teams"), L(LabelOutcome, OutcomeSuccess))
	counter.Add(ctx, 2, L(LabelSource, "teams"), L(LabelOutcome, OutcomeSuccess))

	gauge, err := m.Gauge(MetricRunsInFlight, "runs in flight")
	require.NoError(t, err)
	gauge.Inc(ctx)
	gauge.Inc(ctx)
	gauge.Dec(ctx)

	hist, err := m.Histogram(MetricFetchDuration, "fetch duration", WithUnit("s"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)
	hist.Record(ctx, 0.2, L(LabelSource, "teams"))

	body := scrape(t, m)
	assert.Contains(t, body, "harvest_fetch_attempts_total")
	assert.Contains(t, body, `source="teams"`)
	assert.Contains(t, body, "harvest_runs_in_flight")
	assert.Contains(t, body, "harvest_fetch_duration_seconds_bucket")
}

func TestHTTPStatusClassAndOutcome(t *testing.T) {
	assert.Equal(t, "2xx", HTTPStatusClass(200))
	assert.Equal(t, "5xx", HTTPStatusClass(503))
	assert.Equal(t, "unknown", HTTPStatusClass(42))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(304))
	assert.Equal(t, OutcomeError, HTTPOutcome(404))
}

func TestGinHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := New(&Config{Enabled: true, ServiceName: "harvest-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	httpMetrics, err := NewHTTPServerMetrics(m, "admin")
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinHTTPMiddleware(httpMetrics))
	r.GET("/sources/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources/teams", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `route="/sources/:name"`)
	assert.Contains(t, body, `status_class="2xx"`)
}

func TestNilHTTPServerMetricsObserve(t *testing.T) {
	var m *HTTPServerMetrics
	assert.NotPanics(t, func() { m.Observe(context.Background(), "GET", "/", 200, time.Millisecond) })

	_, err := NewHTTPServerMetrics(nil, "x")
	assert.Error(t, err)
}
