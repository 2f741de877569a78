package breaker

import "github.com/ceyewan/harvest/metrics"

const (
	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = metrics.MetricBreakerStateChanges

	// MetricRejected 被拒绝的请求数 (Counter)
	MetricRejected = "harvest_breaker_rejected_total"

	LabelFromState = "from"
	LabelToState   = "to"
)
