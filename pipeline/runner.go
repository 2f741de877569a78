// Package pipeline 按数据源编排一次完整的运行：抓取、逐页解析、字段变换、扇出存储。
//
// 数据源在启动时编译进 Registry，配置错误在此时暴露，不会等到第一次运行。
// Runner 保证同一数据源的运行互斥（dlock，进程内或跨实例），忙碌时的触发直接跳过；
// 不同数据源并行运行，总并发受 workers 限制。每次运行的全部错误收集在 RunOutcome 中返回，
// 不会向上抛出。
//
//	reg, _ := pipeline.NewRegistry(cfg.Sources, time.Hour)
//	runner, _ := pipeline.NewRunner(&cfg.Runner, pipeline.Deps{
//		Registry: reg, Limiter: limiter, Breaker: brk, Fetcher: f, Storage: engine, Locker: locker,
//	}, pipeline.WithLogger(logger))
//	outcome, _ := runner.Run(ctx, "standings")
package pipeline

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/dlock"
	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/parser"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/storage"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// Deps Runner 依赖的组件，全部必填
type Deps struct {
	Registry *Registry
	Limiter  ratelimit.Limiter
	Breaker  breaker.Breaker
	Fetcher  fetcher.Fetcher
	Storage  *storage.Engine
	Locker   dlock.Locker
}

// Runner 数据源运行器
type Runner struct {
	cfg      Config
	deps     Deps
	sem      *semaphore.Weighted
	logger   clog.Logger
	tracer   oteltrace.Tracer
	runs     metrics.Counter
	duration metrics.Histogram
	inFlight metrics.Gauge

	mu   sync.RWMutex
	last map[string]RunOutcome
}

// NewRunner 创建运行器，并把每个数据源的限流与熔断参数登记到共享组件中。
// 数据源声明了没有对应后端的存储目标时返回配置错误。
func NewRunner(cfg *Config, deps Deps, opts ...Option) (*Runner, error) {
	if deps.Registry == nil || deps.Limiter == nil || deps.Breaker == nil ||
		deps.Fetcher == nil || deps.Storage == nil || deps.Locker == nil {
		return nil, ErrDependencyNil
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	r := &Runner{
		cfg:      c,
		deps:     deps,
		sem:      semaphore.NewWeighted(int64(c.Workers)),
		logger:   o.logger,
		tracer:   o.tracer,
		runs:     metrics.MustCounter(o.meter, metrics.MetricRuns, "Source runs by status."),
		duration: metrics.MustHistogram(o.meter, metrics.MetricRunDuration, "Source run duration.", metrics.WithUnit("s")),
		inFlight: metrics.MustGauge(o.meter, metrics.MetricRunsInFlight, "Source runs currently executing."),
		last:     make(map[string]RunOutcome),
	}

	for _, name := range deps.Registry.Names() {
		e, _ := deps.Registry.get(name)
		if e.source.RateLimiter != nil {
			if err := deps.Limiter.Configure(name, e.source.RateLimiter); err != nil {
				return nil, xerrors.Wrapf(err, "source %s", name)
			}
		}
		if e.source.CircuitBreaker != nil {
			if err := deps.Breaker.Configure(name, e.source.CircuitBreaker); err != nil {
				return nil, xerrors.Wrapf(err, "source %s", name)
			}
		}
		if err := deps.Storage.Validate(e.source.Storage); err != nil {
			return nil, xerrors.Wrapf(err, "source %s", name)
		}
		r.logger.Info("source registered",
			clog.String("source", name),
			clog.String("type", e.source.kind()),
			clog.Bool("enabled", e.source.IsEnabled()),
			clog.String("schedule", e.source.Schedule))
	}
	return r, nil
}

// Registry 返回数据源登记表
func (r *Runner) Registry() *Registry { return r.deps.Registry }

// Run 执行一次数据源运行。
//
// 只有数据源不存在时返回错误；其余情况（包括抓取失败、存储部分失败、数据源忙碌）
// 都体现在 RunOutcome.Status 与 Errors 中。
func (r *Runner) Run(ctx context.Context, name string) (*RunOutcome, error) {
	e, ok := r.deps.Registry.get(name)
	if !ok {
		return nil, xerrors.Wrapf(ErrSourceNotFound, "%s", name)
	}

	out := &RunOutcome{RunID: uuid.NewString(), Source: name, StartedAt: time.Now()}
	logger := r.logger.With(clog.String("source", name), clog.String("run_id", out.RunID))

	key := "source:" + name
	locked, err := r.deps.Locker.TryLock(ctx, key)
	if err != nil {
		out.fail(xerrors.Wrap(err, "acquire source lock"))
		return r.finish(ctx, logger, out, StatusFailure), nil
	}
	if !locked {
		logger.InfoContext(ctx, "source is busy, run skipped")
		return r.finish(ctx, logger, out, StatusSkipped), nil
	}
	defer func() {
		if err := r.deps.Locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("release source lock failed", clog.Error(err))
		}
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		out.fail(err)
		return r.finish(ctx, logger, out, StatusFailure), nil
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.timeout(e))
	defer cancel()
	ctx, span := trace.StartSpan(ctx, r.tracer, trace.SpanRun,
		attribute.String(trace.AttrSource, name),
		attribute.String(trace.AttrRunID, out.RunID))
	defer span.End()

	source := metrics.L(metrics.LabelSource, name)
	r.inFlight.Inc(ctx, source)
	defer r.inFlight.Dec(ctx, source)

	logger.InfoContext(ctx, "run started")
	status := r.execute(ctx, logger, e, out)
	if status.Failed() {
		trace.MarkSpanError(span, out.Err())
	}
	span.SetAttributes(attribute.Int(trace.AttrRecords, out.Records))
	return r.finish(ctx, logger, out, status), nil
}

// execute 抓取 → 逐页解析 → 变换 → 存储，任一阶段失败即停止。
// 任何阶段 panic 都被恢复并记为失败，调度循环和锁释放不受影响。
func (r *Runner) execute(ctx context.Context, logger clog.Logger, e *entry, out *RunOutcome) (status Status) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "run panic recovered",
				clog.Any("panic", p),
				clog.String("stack", string(debug.Stack())))
			out.fail(xerrors.Wrapf(ErrPanicRecovered, "%v", p))
			status = StatusFailure
		}
	}()

	res, err := r.deps.Fetcher.Fetch(ctx, &fetcher.Request{
		Source:   e.source.Name,
		Endpoint: &e.source.Fetcher,
		CacheTTL: e.cacheTTL,
	})
	if res != nil {
		out.FetchedPages = len(res.Pages)
		out.CacheHits = res.CacheHits
	}
	if err != nil {
		out.fail(xerrors.Wrap(err, "fetch"))
		return StatusFailure
	}

	records, err := parser.ParsePages(ctx, e.parser, res.Pages)
	if err != nil {
		out.fail(xerrors.Wrap(err, "parse"))
		return StatusFailure
	}
	records = e.transformer.Apply(records)
	if len(records) == 0 {
		logger.WarnContext(ctx, "no records after parse and transform", clog.Int("pages", out.FetchedPages))
		return StatusSuccess
	}

	stored, err := r.deps.Storage.Store(ctx, records, e.source.Storage)
	if err != nil {
		out.fail(xerrors.Wrap(err, "store"))
		return StatusFailure
	}
	out.Records = stored.Records
	out.Targets = stored.Targets
	for _, t := range stored.Targets {
		out.fail(t.Err)
	}
	return Status(stored.Status)
}

func (r *Runner) finish(ctx context.Context, logger clog.Logger, out *RunOutcome, status Status) *RunOutcome {
	out.Status = status
	out.FinishedAt = time.Now()

	labels := []metrics.Label{
		metrics.L(metrics.LabelSource, out.Source),
		metrics.L(metrics.LabelStatus, string(status)),
	}
	r.runs.Inc(ctx, labels...)
	if status == StatusSkipped {
		return out
	}
	r.duration.Record(ctx, out.Duration().Seconds(), labels...)

	fields := []clog.Field{
		clog.String("status", string(status)),
		clog.Int("pages", out.FetchedPages),
		clog.Int("cache_hits", out.CacheHits),
		clog.Int("records", out.Records),
		clog.Duration("duration", out.Duration()),
	}
	switch status {
	case StatusFailure:
		logger.ErrorContext(ctx, "run failed", append(fields, clog.Error(out.Err()))...)
	case StatusPartial:
		logger.WarnContext(ctx, "run partially succeeded", append(fields, clog.Error(out.Err()))...)
	default:
		logger.InfoContext(ctx, "run finished", fields...)
	}

	r.mu.Lock()
	r.last[out.Source] = *out
	r.mu.Unlock()
	return out
}

func (r *Runner) timeout(e *entry) time.Duration {
	if e.source.TimeoutSeconds > 0 {
		return time.Duration(e.source.TimeoutSeconds * float64(time.Second))
	}
	return r.cfg.timeout()
}

// RunAll 并发运行所有已启用的数据源，结果顺序与 Registry.Enabled 一致
func (r *Runner) RunAll(ctx context.Context) []*RunOutcome {
	names := r.deps.Registry.Enabled()
	outcomes := make([]*RunOutcome, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			out, err := r.Run(ctx, name)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("run all sources", clog.Error(err))
	}
	return outcomes
}

// LastOutcome 数据源最近一次实际执行的结果，跳过的触发不覆盖它
func (r *Runner) LastOutcome(name string) (RunOutcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.last[name]
	return out, ok
}
