package pipeline

import (
	"time"

	"github.com/ceyewan/harvest/storage"
	"github.com/ceyewan/harvest/xerrors"
)

// Status 一次运行的结果
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	// StatusSkipped 数据源上一次运行尚未结束，本次触发被跳过
	StatusSkipped Status = "skipped"
)

// Failed 运行没有完整成功，skipped 不算失败
func (s Status) Failed() bool {
	return s == StatusFailure || s == StatusPartial
}

// RunOutcome 一次运行的结构化结果，运行期间的所有错误都收集在这里而不是向上抛出
type RunOutcome struct {
	RunID        string                 `json:"run_id"`
	Source       string                 `json:"source"`
	Status       Status                 `json:"status"`
	FetchedPages int                    `json:"fetched_pages"`
	CacheHits    int                    `json:"cache_hits"`
	Records      int                    `json:"records"`
	Targets      []storage.TargetResult `json:"targets,omitempty"`
	Errors       []string               `json:"errors,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`

	errs xerrors.Collector
}

// Duration 运行耗时
func (o *RunOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Err 合并本次运行中的全部错误
func (o *RunOutcome) Err() error {
	return o.errs.Err()
}

func (o *RunOutcome) fail(err error) {
	if err == nil {
		return
	}
	o.errs.Collect(err)
	o.Errors = append(o.Errors, err.Error())
}
