package metrics

import "strconv"

// 指标名称
const (
	MetricFetchAttempts       = "harvest_fetch_attempts_total"
	MetricFetchDuration       = "harvest_fetch_duration_seconds"
	MetricCacheRequests       = "harvest_cache_requests_total"
	MetricBreakerStateChanges = "harvest_breaker_state_changes_total"
	MetricRateLimitDelay      = "harvest_ratelimit_delay_seconds"
	MetricStorageWrites       = "harvest_storage_writes_total"
	MetricStorageRows         = "harvest_storage_rows_total"
	MetricRuns                = "harvest_runs_total"
	MetricRunDuration         = "harvest_run_duration_seconds"
	MetricRunsInFlight        = "harvest_runs_in_flight"
)

// 标签名
const (
	LabelService     = "service"
	LabelOperation   = "operation"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
	LabelSource      = "source"
	LabelBackend     = "backend"
	LabelTarget      = "target"
	LabelResult      = "result"
	LabelState       = "state"
	LabelStatus      = "status"
)

const OperationHTTPServer = "http.server"

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

const UnknownRoute = "unknown"

// HTTPStatusClass 将状态码归类为 "2xx" 形式
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 2xx/3xx 视为成功
func HTTPOutcome(status int) string {
	if status >= 200 && status < 400 {
		return OutcomeSuccess
	}
	return OutcomeError
}
