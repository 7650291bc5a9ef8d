package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"stockbot/internal/checker"
	"stockbot/internal/config"
	"stockbot/internal/metrics"
	"stockbot/internal/runtime/supervisor"
	"stockbot/internal/schedule"
	logx "stockbot/pkg/logx"
)

const (
	pushTimeout = 10 * time.Second
	stopTimeout = 30 * time.Second
)

type App struct {
	cfgm    *config.Manager
	root    logx.Logger
	log     logx.Logger
	closer  io.Closer
	metrics *metrics.Metrics

	mu      sync.Mutex
	cfg     *config.Config
	checker *checker.Checker
	runner  *schedule.Runner
}

// New loads configuration (file at cfgPath, if any, plus environment) and
// wires every component. Connections are only made when a run starts.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	root, closer := logx.New(mapLogConfig(cfg))
	a := &App{
		cfgm:    cfgm,
		root:    root,
		log:     root.With(logx.String("comp", "app")),
		closer:  closer,
		metrics: metrics.New(),
	}
	if err := a.apply(cfg); err != nil {
		_ = closer.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.root }

func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Close releases the log file, if any.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// apply swaps in a checker built from cfg. Runs already in progress finish
// with the previous one.
func (a *App) apply(cfg *config.Config) error {
	c, err := buildChecker(cfg, a.root, a.metrics)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.checker = c
	a.mu.Unlock()
	return nil
}

func (a *App) current() *checker.Checker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checker
}

// RunOnce performs a single check and, when a Pushgateway is configured,
// pushes the run metrics. Push failures are logged only.
func (a *App) RunOnce(ctx context.Context) checker.Report {
	rep := a.current().Run(ctx)

	cfg := a.Config()
	if url := strings.TrimSpace(cfg.Metrics.PushgatewayURL); url != "" {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := a.metrics.Push(pctx, url, cfg.Metrics.Job); err != nil {
			a.log.Warn("metrics push failed", logx.String("url", url), logx.Err(err))
		} else {
			a.log.Debug("metrics pushed", logx.String("url", url))
		}
	}
	return rep
}

// Watch runs checks on the configured schedule until ctx is done. The config
// file is watched and changes apply to subsequent runs.
func (a *App) Watch(ctx context.Context) error {
	cfg := a.Config()
	if strings.TrimSpace(cfg.Schedule.Spec) == "" {
		return errors.New("watch mode requires schedule.spec (or SCHEDULE)")
	}
	spec, err := schedule.Parse(cfg.Schedule.Spec)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.root.With(logx.String("comp", "supervisor"))))

	var srv *metrics.Server
	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		a.metrics.WithRuntimeCollectors()
		srv = metrics.NewServer(a.metrics, a.root.With(logx.String("comp", "metrics")))
		if err := srv.Start(addr); err != nil {
			return fmt.Errorf("metrics listen %s: %w", addr, err)
		}
	}

	if err := a.startRunner(sup.Context(), spec, cfg); err != nil {
		if srv != nil {
			srv.Stop(context.Background())
		}
		return err
	}

	// transactional reload: a new schedule must parse before it is committed
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if strings.TrimSpace(c.Schedule.Spec) == "" {
			return errors.New("schedule.spec: required in watch mode")
		}
		_, err := schedule.Parse(c.Schedule.Spec)
		return err
	})
	reloads := a.cfgm.Subscribe(4)
	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(reloads)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-reloads:
				if !ok {
					return
				}
				a.reload(c, next)
			}
		}
	})
	sup.Go0("systemd.watchdog", watchdog)

	notifyReady(a.log)
	a.log.Info("watching", logx.String("schedule", spec.String()))

	<-sup.Context().Done()
	notifyStopping(a.log)
	a.log.Info("stopping")

	sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	werr := sup.Stop(sctx)
	a.stopRunner(sctx)
	if srv != nil {
		srv.Stop(sctx)
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return nil
}

func (a *App) reload(ctx context.Context, next *config.Config) {
	prev := a.Config()
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)

	if err := a.apply(next); err != nil {
		a.log.Warn("config apply failed; keeping previous", logx.Err(err))
		return
	}
	for _, s := range sections {
		switch s {
		case "logging", "metrics":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
	if prev.Schedule != next.Schedule {
		spec, err := schedule.Parse(next.Schedule.Spec)
		if err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		a.stopRunner(sctx)
		cancel()
		if err := a.startRunner(ctx, spec, next); err != nil {
			a.log.Error("schedule restart failed", logx.Err(err))
		}
	}
}

func (a *App) startRunner(ctx context.Context, spec schedule.Spec, cfg *config.Config) error {
	r := schedule.NewRunner(spec, schedule.Options{
		Timezone:   cfg.Schedule.Timezone,
		RunAtStart: cfg.Schedule.RunAtStart,
	}, func(c context.Context) {
		a.RunOnce(c)
	}, a.root.With(logx.String("comp", "schedule")))
	if err := r.Start(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.runner = r
	a.mu.Unlock()
	return nil
}

func (a *App) stopRunner(ctx context.Context) {
	a.mu.Lock()
	r := a.runner
	a.runner = nil
	a.mu.Unlock()
	if r != nil {
		r.Stop(ctx)
	}
}
