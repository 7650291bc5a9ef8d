package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/catalog"
	"stockbot/internal/checker"
	"stockbot/internal/notify"
	"stockbot/internal/probe"
	logx "stockbot/pkg/logx"
)

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New()

	m.ObserveCatalog(7)
	m.ObserveProbe(catalog.StoreCroma, probe.InStock)
	m.ObserveProbe(catalog.StoreCroma, probe.InStock)
	m.ObserveProbe(catalog.StoreFlipkart, probe.Failed)
	m.ObserveDelivery(notify.Report{Deliveries: []notify.Delivery{{ChatID: "1"}, {ChatID: "2", Err: errors.New("x")}}})
	m.ObserveDelivery(notify.Report{Skipped: true})
	m.ObserveRun(checker.StateDone, 2*time.Second)
	m.ObserveRun(checker.StateFailed, time.Second)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.products))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probes.WithLabelValues("croma", "in_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("flipkart", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.runs))
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObserveRun(checker.StateDone, time.Second)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `stockbot_runs_total{state="done"} 1`)
	assert.Contains(t, string(body), "stockbot_run_duration_seconds_bucket")

	res, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	s := NewServer(New(), logx.Nop())
	require.NoError(t, s.Start("127.0.0.1:0"))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	res, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Empty(t, s.Addr())
	s.Stop(ctx)
}

func TestPush(t *testing.T) {
	t.Parallel()
	var (
		method, path string
		body         []byte
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gw.Close)

	m := New()
	m.ObserveCatalog(3)
	require.NoError(t, m.Push(context.Background(), gw.URL, ""))
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/stockbot"), path)
	assert.NotEmpty(t, body)
}

func TestPushGatewayError(t *testing.T) {
	t.Parallel()
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(gw.Close)

	assert.Error(t, New().Push(context.Background(), gw.URL, "stockbot"))
}
