// Package metrics 为 harvest 提供基于 OpenTelemetry 的指标接口，通过 Prometheus exporter 暴露。
//
//	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "harvest"})
//	counter, _ := meter.Counter(metrics.MetricFetchAttempts, "fetch attempts")
//	counter.Inc(ctx, metrics.L(metrics.LabelSource, "teams"), metrics.L(metrics.LabelOutcome, "success"))
//
// 未启用或未注入时使用 Discard()，所有操作都是空操作。
package metrics

import (
	"context"
	"net/http"
)

// Counter 只增不减的累计值
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意设置的瞬时值
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 观测值分布
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取端点
	Handler() http.Handler

	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	Unit    string
	Buckets []float64
}

// WithUnit 设置指标单位，例如 "s"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = buckets
	}
}
