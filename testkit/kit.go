// Package testkit 为各组件测试提供公共依赖：日志、指标、数据库与 redis。
//
// 需要外部容器的 helper（postgres、mysql、redis）只在设置了 HARVEST_INTEGRATION 时运行，
// 否则调用 t.Skip。
package testkit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
)

// NewLogger 返回测试用 logger，设置 HARVEST_TEST_LOG=debug 等级别时输出到 stderr
func NewLogger() clog.Logger {
	level := os.Getenv("HARVEST_TEST_LOG")
	if level == "" {
		return clog.Discard()
	}
	logger, err := clog.New(&clog.Config{Level: level, Format: "console", Output: "stderr", AddSource: true})
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个真实的 meter，使用独立的 Prometheus registry，便于断言 /metrics 输出
func NewMeter(t *testing.T) metrics.Meter {
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "harvest-test"})
	if err != nil {
		return metrics.Discard()
	}
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)，用于表名、缓存 namespace 等后缀
func NewID() string {
	return uuid.New().String()[0:8]
}

// RequireIntegration 未设置 HARVEST_INTEGRATION 时跳过需要容器的测试
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("HARVEST_INTEGRATION") == "" {
		t.Skip("set HARVEST_INTEGRATION=1 to run container-backed tests")
	}
}
