// Command harvest 按配置周期性抓取远程数据源并写入存储。
//
//	harvest -config ./configs          # 启动调度器与管理接口，SIGINT/SIGTERM 时优雅退出
//	harvest -config ./configs -once    # 每个已启用数据源运行一次后退出，有失败时退出码为 1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceyewan/harvest/app"
)

func main() {
	configDir := flag.String("config", "configs", "directory containing config.yaml")
	once := flag.Bool("once", false, "run every enabled source once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir, *once); err != nil {
		fmt.Fprintf(os.Stderr, "harvest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir string, once bool) error {
	cfg, loader, err := app.LoadConfig(ctx, configDir)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if once {
		outcomes, err := a.RunOnce(ctx)
		for _, out := range outcomes {
			if out == nil {
				continue
			}
			fmt.Printf("%-24s %-8s pages=%d records=%d duration=%s\n",
				out.Source, out.Status, out.FetchedPages, out.Records, out.Duration())
			for _, e := range out.Errors {
				fmt.Printf("  error: %s\n", e)
			}
		}
		return err
	}

	a.WatchLogLevel(ctx, loader)
	return a.Run(ctx)
}
