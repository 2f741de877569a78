// Package storage 把解析后的记录写入一个或多个存储目标。
//
// 关系型后端自动建表、按批次并集增加新列，并按唯一键 upsert；文件后端导出 csv 或 jsonl。
// 一次 Store 对多个目标扇出，各目标独立写入：某个后端失败只记录日志，
// 不阻止也不回滚其他后端，整次结果报告为 partial。
//
//	engine, _ := storage.New([]storage.Backend{relational, files}, storage.WithLogger(logger))
//	outcome, err := engine.Store(ctx, records, source.Storage)
//	if err != nil {
//		// 目标配置错误，没有任何写入发生
//	}
package storage

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// Status 一次 Store 或一次运行的整体结果
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// TargetResult 单个目标的写入结果
type TargetResult struct {
	Target   string        `json:"target"`
	Backend  string        `json:"backend"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Outcome 一次 Store 的结果，Targets 与传入的目标顺序一致
type Outcome struct {
	Status  Status         `json:"status"`
	Records int            `json:"records"`
	Dropped int            `json:"dropped"`
	Targets []TargetResult `json:"targets"`
}

// Err 合并所有失败目标的错误
func (o *Outcome) Err() error {
	var c xerrors.Collector
	for _, t := range o.Targets {
		c.Collect(t.Err)
	}
	return c.Err()
}

// Engine 存储引擎
type Engine struct {
	backends map[string]Backend
	logger   clog.Logger
	options  options
	writes   metrics.Counter
	rows     metrics.Counter
}

// New 创建存储引擎，每种类型至多一个后端
func New(backends []Backend, opts ...Option) (*Engine, error) {
	o := applyOptions(opts)
	e := &Engine{
		backends: make(map[string]Backend, len(backends)),
		logger:   o.logger,
		options:  o,
		writes:   metrics.MustCounter(o.meter, metrics.MetricStorageWrites, "Storage target writes by outcome."),
		rows:     metrics.MustCounter(o.meter, metrics.MetricStorageRows, "Rows written to storage targets."),
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, dup := e.backends[b.Kind()]; dup {
			return nil, xerrors.Config("storage: duplicate backend for type %q", b.Kind())
		}
		e.backends[b.Kind()] = b
	}
	return e, nil
}

// Validate 校验目标配置，并确认每个目标都有对应的后端
func (e *Engine) Validate(targets []Target) error {
	if len(targets) == 0 {
		return xerrors.Config("storage: at least one target is required")
	}
	for i := range targets {
		if err := targets[i].Validate(); err != nil {
			return err
		}
		if _, ok := e.backends[targets[i].Type]; !ok {
			return xerrors.Wrapf(ErrNoBackend, "%s", targets[i].Identity())
		}
	}
	return nil
}

// Store 过滤空记录后把批次扇出到所有目标。
//
// 目标配置错误在任何写入之前返回；后端写入错误记录在 Outcome 中，不作为返回值。
func (e *Engine) Store(ctx context.Context, records []record.Record, targets []Target) (*Outcome, error) {
	if err := e.Validate(targets); err != nil {
		return nil, err
	}

	batch := make([]record.Record, 0, len(records))
	for _, r := range record.DropEmpty(records) {
		batch = append(batch, record.NormalizeRecord(r))
	}
	outcome := &Outcome{
		Records: len(batch),
		Dropped: len(records) - len(batch),
		Targets: make([]TargetResult, len(targets)),
	}
	if outcome.Dropped > 0 {
		e.logger.Debug("dropped empty records", clog.Int("dropped", outcome.Dropped))
	}

	ctx, span := trace.StartSpan(ctx, e.options.tracer, trace.SpanStore,
		attribute.Int(trace.AttrRecords, len(batch)))
	defer span.End()

	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome.Targets[i] = e.storeTarget(ctx, &targets[i], batch)
		}(i)
	}
	wg.Wait()

	outcome.Status = summarize(outcome.Targets)
	if outcome.Status != StatusSuccess {
		trace.MarkSpanError(span, outcome.Err())
	}
	return outcome, nil
}

// storeTarget 写入单个目标。列名校验失败或后端 panic 都只记为该目标的失败。
func (e *Engine) storeTarget(ctx context.Context, target *Target, batch []record.Record) (res TargetResult) {
	res = TargetResult{Target: target.Identity(), Backend: target.Type}
	if len(batch) == 0 {
		return res
	}

	ctx, span := trace.StartSpan(ctx, e.options.tracer, trace.SpanStoreTarget,
		attribute.String(trace.AttrBackend, target.Type),
		attribute.String(trace.AttrTarget, target.TableOrPath))
	defer span.End()

	labels := []metrics.Label{
		metrics.L(metrics.LabelBackend, target.Type),
		metrics.L(metrics.LabelTarget, target.TableOrPath),
	}
	fail := func(err error) {
		res.Err = fmt.Errorf("%s: %w: %w", target.Identity(), err, ErrBackend)
		res.Error = res.Err.Error()
		trace.MarkSpanError(span, err)
		e.writes.Inc(ctx, append(labels, metrics.L(metrics.LabelOutcome, metrics.OutcomeError))...)
		e.logger.ErrorContext(ctx, "storage write failed",
			clog.String("backend", target.Type),
			clog.String("target", target.TableOrPath),
			clog.Int("records", len(batch)),
			clog.ErrorWithCode(err, xerrors.CodeStorage))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Duration = time.Since(start)
			e.logger.ErrorContext(ctx, "storage write panic recovered",
				clog.String("target", target.Identity()),
				clog.Any("panic", r),
				clog.String("stack", string(debug.Stack())))
			fail(xerrors.Wrapf(ErrPanicRecovered, "%v", r))
		}
	}()

	if target.Type == KindRelational {
		for _, col := range record.UnionColumns(batch) {
			if err := validateColumn(col); err != nil {
				fail(xerrors.Wrap(ErrInvalidColumn, err.Error()))
				return res
			}
		}
	}

	rows, err := e.backends[target.Type].Write(ctx, target, record.Dedupe(batch, target.UniqueColumns))
	res.Duration = time.Since(start)
	if err != nil {
		fail(err)
		return res
	}

	res.Rows = rows
	e.writes.Inc(ctx, append(labels, metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))...)
	e.rows.Add(ctx, float64(rows), labels...)
	e.logger.InfoContext(ctx, "storage write committed",
		clog.String("backend", target.Type),
		clog.String("target", target.TableOrPath),
		clog.Int("rows", rows),
		clog.Duration("duration", res.Duration))
	return res
}

// Close 关闭所有后端
func (e *Engine) Close() error {
	var c xerrors.Collector
	for _, b := range e.backends {
		c.Collect(b.Close())
	}
	return c.Err()
}

func summarize(results []TargetResult) Status {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case failed == len(results):
		return StatusFailure
	default:
		return StatusPartial
	}
}
