package checker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockbot/internal/catalog"
	"stockbot/internal/notify"
	"stockbot/internal/probe"
	logx "stockbot/pkg/logx"
)

const (
	AlertHeader    = "🔥 *Stock Alert!*"
	FailureMessage = "❌ Stock checker failed to load products from the database."
)

// State is the orchestrator's position in a run.
type State string

const (
	StateLoad   State = "load"
	StateProbe  State = "probe"
	StateNotify State = "notify"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Notifier delivers a message to all configured recipients.
type Notifier interface {
	Send(ctx context.Context, message string) notify.Report
}

// Recorder receives run metrics. A nil Recorder disables recording.
type Recorder interface {
	ObserveCatalog(products int)
	ObserveProbe(store catalog.StoreType, status probe.Status)
	ObserveDelivery(rep notify.Report)
	ObserveRun(state State, took time.Duration)
}

type Config struct {
	PostalCodes []string
}

// Report is everything one run produced. It is not persisted.
type Report struct {
	RunID    string
	State    State
	Products int
	// Results holds every probe outcome in catalog-then-postal-code order.
	Results []probe.Result
	// Alerts holds the in-stock messages in the same order.
	Alerts []string
	// Message is the text handed to the notifier ("" when nothing was sent).
	Message  string
	Notified bool
	Notify   notify.Report
	// Err is the catalog failure on the failed path.
	Err  error
	Took time.Duration
}

type Checker struct {
	cfg      Config
	reader   catalog.Reader
	probes   *probe.Registry
	notifier Notifier

	log    logx.Logger
	rec    Recorder
	tracer trace.Tracer
}

type Option func(*Checker)

func WithLogger(log logx.Logger) Option { return func(c *Checker) { c.log = log } }

func WithRecorder(r Recorder) Option { return func(c *Checker) { c.rec = r } }

func New(cfg Config, reader catalog.Reader, probes *probe.Registry, n Notifier, opts ...Option) *Checker {
	c := &Checker{
		cfg:      cfg,
		reader:   reader,
		probes:   probes,
		notifier: n,
		tracer:   otel.Tracer("stockbot/checker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// Run performs one LOAD -> PROBE -> NOTIFY pass. It never returns an error:
// the outcome, including absorbed failures, is in the Report.
func (c *Checker) Run(ctx context.Context) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), State: StateLoad}
	log := c.log.With(logx.String("run_id", rep.RunID))

	ctx, span := c.tracer.Start(ctx, "checker.run", trace.WithAttributes(attribute.String("run.id", rep.RunID)))
	defer span.End()

	log.Info("starting stock check", logx.Strings("postal_codes", c.cfg.PostalCodes))

	// LOAD
	products, err := c.reader.Products(ctx)
	if err != nil {
		rep.State = StateFailed
		rep.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog load failed")
		log.Error("failed to fetch products from database", logx.Err(err))

		rep.Message = FailureMessage
		rep.Notify = c.notifier.Send(ctx, FailureMessage)
		rep.Notified = !rep.Notify.Skipped
		c.finish(&rep, start)
		return rep
	}
	rep.Products = len(products)
	if c.rec != nil {
		c.rec.ObserveCatalog(len(products))
	}
	log.Info("catalog loaded", logx.Int("products", len(products)))

	// PROBE
	rep.State = StateProbe
	for _, p := range products {
		pr, ok := c.probes.Lookup(p.StoreType)
		if !ok {
			log.Debug("no probe for store type; skipping", logx.String("product", p.Name), logx.String("store_type", string(p.StoreType)))
			continue
		}
		for _, pc := range c.cfg.PostalCodes {
			res := pr.Check(ctx, p, pc)
			rep.Results = append(rep.Results, res)
			if c.rec != nil {
				c.rec.ObserveProbe(p.StoreType, res.Status)
			}
			if res.Available() && res.Message != "" {
				rep.Alerts = append(rep.Alerts, res.Message)
			}
		}
	}
	span.SetAttributes(
		attribute.Int("catalog.products", rep.Products),
		attribute.Int("probe.checks", len(rep.Results)),
		attribute.Int("probe.in_stock", len(rep.Alerts)),
	)

	// NOTIFY
	rep.State = StateNotify
	if len(rep.Alerts) == 0 {
		log.Info("all items out of stock; no message sent", logx.Int("checks", len(rep.Results)))
	} else {
		log.Info("items in stock; sending message", logx.Int("in_stock", len(rep.Alerts)))
		rep.Message = ComposeAlert(rep.Alerts)
		rep.Notify = c.notifier.Send(ctx, rep.Message)
		rep.Notified = !rep.Notify.Skipped
	}

	rep.State = StateDone
	c.finish(&rep, start)
	return rep
}

func (c *Checker) finish(rep *Report, start time.Time) {
	rep.Took = time.Since(start)
	if c.rec != nil {
		if rep.Notified || rep.Notify.Skipped {
			c.rec.ObserveDelivery(rep.Notify)
		}
		c.rec.ObserveRun(rep.State, rep.Took)
	}
	c.log.Info("stock check finished",
		logx.String("run_id", rep.RunID),
		logx.String("state", string(rep.State)),
		logx.Int("checks", len(rep.Results)),
		logx.Int("in_stock", len(rep.Alerts)),
		logx.Duration("took", rep.Took),
	)
}

// ComposeAlert joins alert blocks under the Stock Alert header.
func ComposeAlert(alerts []string) string {
	return AlertHeader + "\n\n" + strings.Join(alerts, "\n\n")
}
