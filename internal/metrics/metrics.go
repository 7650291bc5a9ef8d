package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"stockbot/internal/catalog"
	"stockbot/internal/checker"
	"stockbot/internal/notify"
	"stockbot/internal/probe"
)

const namespace = "stockbot"

// Metrics holds the run collectors on a private registry.
// It implements checker.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
	probes        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	products      prometheus.Gauge

	runtimeOnce sync.Once
}

var _ checker.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed stock check runs by final state.",
		}, []string{"state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one stock check run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_checks_total",
			Help:      "Availability checks by store and verdict.",
		}, []string{"store", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Per-recipient notification outcomes.",
		}, []string{"outcome"}),
		products: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_products",
			Help:      "Products loaded by the last successful catalog read.",
		}),
	}
	m.reg.MustRegister(m.runs, m.runDuration, m.lastRun, m.probes, m.notifications, m.products)
	return m
}

// WithRuntimeCollectors adds Go runtime and process collectors once; only
// useful for the long-running watch mode.
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	m.runtimeOnce.Do(func() {
		m.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveCatalog(products int) { m.products.Set(float64(products)) }

func (m *Metrics) ObserveProbe(store catalog.StoreType, status probe.Status) {
	m.probes.WithLabelValues(string(store), status.String()).Inc()
}

func (m *Metrics) ObserveDelivery(rep notify.Report) {
	if rep.Skipped {
		m.notifications.WithLabelValues("skipped").Inc()
		return
	}
	if n := rep.Delivered(); n > 0 {
		m.notifications.WithLabelValues("delivered").Add(float64(n))
	}
	if n := rep.Failed(); n > 0 {
		m.notifications.WithLabelValues("failed").Add(float64(n))
	}
}

func (m *Metrics) ObserveRun(state checker.State, took time.Duration) {
	m.runs.WithLabelValues(string(state)).Inc()
	m.runDuration.Observe(took.Seconds())
	m.lastRun.SetToCurrentTime()
}

// Push sends the current values to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = namespace
	}
	return push.New(url, job).Gatherer(m.reg).PushContext(ctx)
}
