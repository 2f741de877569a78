package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/harvest/clog"
)

// Scheduler 按固定间隔触发已启用的数据源。
//
// 每个数据源一个循环：启动时立即运行一次，之后每个间隔运行一次。
// 循环内串行等待上一次运行结束，运行时间超过间隔时错过的触发直接丢弃，不会排队补跑。
type Scheduler struct {
	runner *Runner
	logger clog.Logger
}

// NewScheduler 创建调度器
func NewScheduler(runner *Runner, opts ...Option) *Scheduler {
	o := applyOptions(opts)
	return &Scheduler{runner: runner, logger: o.logger.WithNamespace("scheduler")}
}

// Start 阻塞运行直到 ctx 结束，返回前等待所有进行中的运行完成
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	scheduled := 0
	for _, name := range s.runner.Registry().Enabled() {
		e, _ := s.runner.Registry().get(name)
		if e.interval <= 0 {
			s.logger.Info("source has no schedule, manual trigger only", clog.String("source", name))
			continue
		}
		scheduled++
		interval := e.interval
		g.Go(func() error {
			s.loop(ctx, name, interval)
			return nil
		})
	}
	s.logger.Info("scheduler started", clog.Int("sources", scheduled))

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.trigger(ctx, name)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// 运行期间积压的 tick 丢弃
		select {
		case <-ticker.C:
		default:
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	out, err := s.runner.Run(ctx, name)
	if err != nil {
		s.logger.Error("scheduled run rejected", clog.String("source", name), clog.Error(err))
		return
	}
	s.logger.Debug("scheduled run done",
		clog.String("source", name),
		clog.String("run_id", out.RunID),
		clog.String("status", string(out.Status)))
}
