package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "stockbot/pkg/logx"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

type Options struct {
	// Timezone is an IANA name; empty means the local zone.
	Timezone string
	// RunAtStart triggers one run as soon as the Runner starts.
	RunAtStart bool
}

// Runner triggers a single Job on a Spec. Triggers that fire while the
// previous run is still in progress are skipped, so runs never overlap.
type Runner struct {
	spec Spec
	opts Options
	job  Job
	log  logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entry   cron.EntryID
	wrapped cron.Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(spec Spec, opts Options, job Job, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{spec: spec, opts: opts, job: job, log: log}
}

// Start registers the job and starts triggering. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(r.opts.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule timezone %q: %w", tz, err)
		}
		loc = l
	}
	sched, err := r.schedule()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	clog := cronLogger{log: r.log}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(clog))
	// chain shared by cron triggers and the start-up run
	r.wrapped = cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() {
		r.job(ctx)
	}))
	r.entry = c.Schedule(sched, r.wrapped)
	r.c = c
	r.cancel = cancel
	c.Start()

	r.log.Info("schedule started",
		logx.String("kind", r.spec.Kind.String()),
		logx.String("spec", r.spec.String()),
		logx.String("tz", loc.String()),
		logx.Bool("run_at_start", r.opts.RunAtStart),
	)
	if r.opts.RunAtStart {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.wrapped.Run()
		}()
	}
	return nil
}

func (r *Runner) schedule() (cron.Schedule, error) {
	switch r.spec.Kind {
	case KindInterval:
		if r.spec.Every <= 0 {
			return nil, fmt.Errorf("interval must be > 0")
		}
		return interval(r.spec.Every), nil
	default:
		s, err := cronParser.Parse(r.spec.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", r.spec.Cron, err)
		}
		return s, nil
	}
}

// Next reports the next trigger time (zero when stopped).
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return time.Time{}
	}
	return r.c.Entry(r.entry).Next
}

// Stop stops triggering and waits for an in-flight run to finish. The run's
// context is cancelled only once that wait ends: after the run returns, or
// when ctx expires first, in which case Stop returns without waiting further.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	cancel := r.cancel
	r.c = nil
	r.cancel = nil
	r.mu.Unlock()
	if c == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("schedule stopped")
	case <-ctx.Done():
		r.log.Warn("schedule stop timed out; cancelling run")
	}
	cancel()
}

// interval fires every d from the previous activation. Unlike cron.Every it
// keeps sub-second precision.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

// cronLogger routes robfig/cron diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
