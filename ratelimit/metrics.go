package ratelimit

import "github.com/ceyewan/harvest/metrics"

const (
	// MetricDelay 每个数据源当前的等待间隔（秒）
	MetricDelay = metrics.MetricRateLimitDelay
)
