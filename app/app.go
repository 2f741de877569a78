// Package app 按配置装配 harvest 的全部组件，并管理它们的启动与关闭顺序。
//
//	cfg, loader, _ := app.LoadConfig(ctx, "configs")
//	a, _ := app.New(ctx, cfg)
//	defer a.Close(context.Background())
//	a.WatchLogLevel(ctx, loader)
//	err := a.Run(ctx)
package app

import (
	"context"
	"errors"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/harvest/breaker"
	"github.com/ceyewan/harvest/cache"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/config"
	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/db"
	"github.com/ceyewan/harvest/dlock"
	"github.com/ceyewan/harvest/fetcher"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/pipeline"
	"github.com/ceyewan/harvest/ratelimit"
	"github.com/ceyewan/harvest/server"
	"github.com/ceyewan/harvest/storage"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// App 装配好的 harvest 实例
type App struct {
	cfg       Config
	logger    clog.Logger
	meter     metrics.Meter
	tracer    oteltrace.Tracer
	runner    *pipeline.Runner
	scheduler *pipeline.Scheduler
	server    *server.Server

	// closers 按创建顺序登记，Close 时逆序执行
	closers []func(ctx context.Context) error
}

// Option App 选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 使用外部 logger，不再按 log 配置创建
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New 按依赖顺序创建全部组件。任一步失败时已创建的组件会被关闭。
func New(ctx context.Context, cfg *Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		return nil, xerrors.Config("app: config is nil")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: *cfg}
	a.cfg.setDefaults()
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	c := &a.cfg
	a.logger = o.logger
	if a.logger == nil {
		if a.logger, err = clog.New(&c.Log, clog.WithTraceContext()); err != nil {
			return nil, xerrors.Wrap(err, "create logger")
		}
	}
	a.logger = a.logger.With(clog.String("service", c.App.Name))

	if a.meter, err = metrics.New(&c.Metrics, metrics.WithLogger(a.logger)); err != nil {
		return nil, xerrors.Wrap(err, "create meter")
	}
	a.onClose(a.meter.Shutdown)

	shutdownTrace, err := trace.Init(ctx, &c.Trace)
	if err != nil {
		return nil, xerrors.Wrap(err, "init tracing")
	}
	a.onClose(shutdownTrace)
	// 抓取、运行、存储共用同一个 Tracer，span 挂在同一条链路上
	if c.Trace.Enabled {
		a.tracer = trace.Tracer(nil)
	}

	backends, err := a.storageBackends(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := storage.New(backends,
		storage.WithLogger(a.logger), storage.WithMeter(a.meter), storage.WithTracer(a.tracer))
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return engine.Close() })

	responses, err := cache.New(&c.Cache, cache.WithLogger(a.logger), cache.WithMeter(a.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create response cache")
	}
	a.onClose(func(context.Context) error { return responses.Close() })

	limiter, err := ratelimit.New(c.RateLimiter, ratelimit.WithLogger(a.logger), ratelimit.WithMeter(a.meter))
	if err != nil {
		return nil, err
	}
	brk, err := breaker.New(c.CircuitBreaker, breaker.WithLogger(a.logger), breaker.WithMeter(a.meter))
	if err != nil {
		return nil, err
	}

	f, err := fetcher.New(&c.Fetcher, limiter, brk,
		fetcher.WithCache(responses),
		fetcher.WithLogger(a.logger),
		fetcher.WithMeter(a.meter),
		fetcher.WithTracer(a.tracer))
	if err != nil {
		return nil, err
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := pipeline.NewRegistry(c.Sources, time.Duration(c.Cache.TTLSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMeter(a.meter),
		pipeline.WithTracer(a.tracer),
	}
	a.runner, err = pipeline.NewRunner(&c.Runner, pipeline.Deps{
		Registry: reg,
		Limiter:  limiter,
		Breaker:  brk,
		Fetcher:  f,
		Storage:  engine,
		Locker:   locker,
	}, pipeOpts...)
	if err != nil {
		return nil, err
	}
	a.scheduler = pipeline.NewScheduler(a.runner, pipeOpts...)

	serverOpts := []server.Option{server.WithLogger(a.logger), server.WithMeter(a.meter)}
	if c.Trace.Enabled {
		serverOpts = append(serverOpts, server.WithTracing(c.App.Name))
	}
	if a.server, err = server.New(&c.Server, a.runner, serverOpts...); err != nil {
		return nil, err
	}

	a.logger.Info("harvest assembled",
		clog.String("env", c.App.Env),
		clog.String("version", c.App.Version),
		clog.String("database", c.Database.Driver),
		clog.String("lock", c.Lock.Driver),
		clog.Int("sources", reg.Len()),
		clog.Int("enabled", len(reg.Enabled())))
	return a, nil
}

// storageBackends 关系型后端（sqlite / mysql / postgres）与文件后端
func (a *App) storageBackends(ctx context.Context) ([]storage.Backend, error) {
	c := &a.cfg
	conn, err := connector.NewSQL(&c.Database, connector.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return conn.Close() })
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	dbOpts := []db.Option{db.WithLogger(a.logger)}
	if c.DB.Silent {
		dbOpts = append(dbOpts, db.WithSilentMode())
	}
	database, err := db.New(conn, &c.DB, dbOpts...)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return database.Close() })

	relational, err := storage.NewRelational(database, storage.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFile(&c.Exports, storage.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return []storage.Backend{relational, files}, nil
}

// newLocker redis 驱动时先建立 redis 连接
func (a *App) newLocker(ctx context.Context) (dlock.Locker, error) {
	c := &a.cfg
	lockOpts := []dlock.Option{dlock.WithLogger(a.logger), dlock.WithMeter(a.meter)}
	if c.Lock.Driver == dlock.DriverRedis {
		connOpts := []connector.Option{connector.WithLogger(a.logger)}
		if c.Trace.Enabled {
			connOpts = append(connOpts, connector.WithTracing())
		}
		conn, err := connector.NewRedis(c.Redis, connOpts...)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return conn.Close() })
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		lockOpts = append(lockOpts, dlock.WithRedisConnector(conn))
	}

	locker, err := dlock.New(&c.Lock, lockOpts...)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return locker.Close() })
	return locker, nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Runner 返回数据源运行器
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Server 返回管理接口
func (a *App) Server() *server.Server { return a.server }

// RunOnce 运行每个已启用的数据源一次，有任何运行失败或部分失败时返回错误
func (a *App) RunOnce(ctx context.Context) ([]*pipeline.RunOutcome, error) {
	outcomes := a.runner.RunAll(ctx)
	var failed []string
	for _, out := range outcomes {
		if out != nil && out.Status.Failed() {
			failed = append(failed, out.Source)
		}
	}
	if len(failed) > 0 {
		return outcomes, xerrors.Wrapf(xerrors.ErrUnavailable, "%d of %d sources failed: %v", len(failed), len(outcomes), failed)
	}
	return outcomes, nil
}

// Run 启动调度器与管理接口，阻塞直到 ctx 结束后完成优雅关闭
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Start(gctx)
	})
	g.Go(a.server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		return a.server.Shutdown(context.WithoutCancel(gctx))
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// WatchLogLevel 配置文件中 log.level 变化时即时调整日志级别
func (a *App) WatchLogLevel(ctx context.Context, loader config.Loader) {
	ch, err := loader.Watch(ctx, "log.level")
	if err != nil {
		a.logger.Warn("watch log level", clog.Error(err))
		return
	}
	go func() {
		for ev := range ch {
			s, _ := ev.Value.(string)
			level, err := clog.ParseLevel(s)
			if err != nil {
				a.logger.Warn("ignore invalid log level", clog.String("level", s))
				continue
			}
			if err := a.logger.SetLevel(level); err != nil {
				a.logger.Warn("set log level", clog.Error(err))
				continue
			}
			a.logger.Info("log level changed", clog.String("level", s))
		}
	}()
}

// Close 逆序关闭全部组件
func (a *App) Close(ctx context.Context) error {
	var c xerrors.Collector
	for i := len(a.closers) - 1; i >= 0; i-- {
		c.Collect(a.closers[i](ctx))
	}
	a.closers = nil
	if a.logger != nil {
		a.logger.Flush()
	}
	return c.Err()
}
