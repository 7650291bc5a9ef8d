package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stockbot/internal/app"
	"stockbot/internal/config"
	logx "stockbot/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		watch    bool
		schedule string
	)
	flag.StringVar(&cfgPath, "config", "", "path to config file (json or yaml); environment variables override it")
	flag.BoolVar(&watch, "watch", false, "keep running and check on the configured schedule")
	flag.StringVar(&schedule, "schedule", "", "schedule for -watch (cron, duration or HH:MM); overrides SCHEDULE")
	flag.Parse()

	if s := strings.TrimSpace(schedule); s != "" {
		_ = os.Setenv(config.EnvSchedule, s)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The process always exits 0; failures are reported through logs and the
	// failure alert.
	a, err := app.New(cfgPath)
	if err != nil {
		logx.NewConsole("info").Error("startup failed", logx.Err(err))
		return
	}
	defer a.Close()

	if watch {
		if err := a.Watch(ctx); err != nil {
			a.Logger().Error("watch stopped", logx.Err(err))
		}
		return
	}

	rep := a.RunOnce(ctx)
	if rep.Err != nil {
		fmt.Fprintln(os.Stderr, "stock check failed:", rep.Err)
	}
}
