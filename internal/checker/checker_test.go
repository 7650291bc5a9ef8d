package checker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/catalog"
	"stockbot/internal/notify"
	"stockbot/internal/probe"
	logx "stockbot/pkg/logx"
)

type staticReader struct {
	products []catalog.Product
	err      error
}

func (r staticReader) Products(context.Context) ([]catalog.Product, error) {
	return r.products, r.err
}

type call struct {
	productID  string
	postalCode string
}

// fakeProbe reports InStock for the listed (productID, postalCode) pairs.
type fakeProbe struct {
	retailer string
	store    catalog.StoreType
	match    map[call]bool

	mu    sync.Mutex
	calls []call
}

func (f *fakeProbe) Check(_ context.Context, p catalog.Product, pc string) probe.Result {
	f.mu.Lock()
	f.calls = append(f.calls, call{p.ProductID, pc})
	f.mu.Unlock()
	if f.match[call{p.ProductID, pc}] {
		return probe.Result{Store: f.store, PostalCode: pc, Product: p, Status: probe.InStock, Message: probe.FormatAlert(f.retailer, pc, p)}
	}
	return probe.Result{Store: f.store, PostalCode: pc, Product: p, Status: probe.OutOfStock}
}

func (f *fakeProbe) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Send(_ context.Context, msg string) notify.Report {
	n.messages = append(n.messages, msg)
	return notify.Report{Deliveries: []notify.Delivery{{ChatID: "1"}}}
}

func newRegistry(probes ...*fakeProbe) *probe.Registry {
	reg := probe.NewRegistry()
	for _, p := range probes {
		reg.Register(p.store, p)
	}
	return reg
}

var (
	phoneX = catalog.Product{Name: "Phone X", ProductID: "P1", StoreType: catalog.StoreCroma, URL: "http://a"}
	phoneY = catalog.Product{Name: "Phone Y", ProductID: "P2", StoreType: catalog.StoreFlipkart, URL: "http://b", AffiliateLink: "http://aff-b"}
)

func TestRunSingleAlert(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{{"P1", "132001"}: true}}
	n := &recordingNotifier{}

	c := New(Config{PostalCodes: []string{"132001"}}, staticReader{products: []catalog.Product{phoneX}}, newRegistry(croma), n)
	rep := c.Run(context.Background())

	assert.Equal(t, StateDone, rep.State)
	require.Len(t, rep.Alerts, 1)
	require.Len(t, n.messages, 1)
	assert.Equal(t, "🔥 *Stock Alert!*\n\n✅ *In Stock at Croma (132001)*\n[Phone X](http://a)", n.messages[0])
	assert.Equal(t, n.messages[0], rep.Message)
	assert.True(t, rep.Notified)
	assert.NotEmpty(t, rep.RunID)
}

func TestRunOrderIsCatalogThenPostalCode(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{{"P1", "132001"}: true}}
	flip := &fakeProbe{retailer: "Flipkart", store: catalog.StoreFlipkart, match: map[call]bool{{"P2", "132001"}: true, {"P2", "110016"}: true}}
	n := &recordingNotifier{}

	c := New(Config{PostalCodes: []string{"110016", "132001"}},
		staticReader{products: []catalog.Product{phoneX, phoneY}}, newRegistry(croma, flip), n)
	rep := c.Run(context.Background())

	require.Len(t, rep.Results, 4)
	assert.Equal(t, []string{
		"✅ *In Stock at Croma (132001)*\n[Phone X](http://a)",
		"✅ *In Stock at Flipkart (110016)*\n[Phone Y](http://aff-b)",
		"✅ *In Stock at Flipkart (132001)*\n[Phone Y](http://aff-b)",
	}, rep.Alerts)
	assert.Equal(t, []call{{"P1", "110016"}, {"P1", "132001"}}, croma.Calls())
	assert.Equal(t, []call{{"P2", "110016"}, {"P2", "132001"}}, flip.Calls())
	require.Len(t, n.messages, 1)
	assert.Equal(t, ComposeAlert(rep.Alerts), n.messages[0])
}

func TestRunOneMatchOfFour(t *testing.T) {
	t.Parallel()
	for _, match := range []call{{"P1", "132001"}, {"P2", "110016"}} {
		croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{match: true}}
		phoneZ := catalog.Product{Name: "Phone Z", ProductID: "P2", StoreType: catalog.StoreCroma, URL: "http://z"}
		c := New(Config{PostalCodes: []string{"132001", "110016"}},
			staticReader{products: []catalog.Product{phoneX, phoneZ}}, newRegistry(croma), &recordingNotifier{})
		rep := c.Run(context.Background())
		assert.Len(t, rep.Results, 4)
		assert.Len(t, rep.Alerts, 1, "match %v", match)
	}
}

func TestRunSkipsUnknownStoreType(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{{"A1", "132001"}: true}}
	n := &recordingNotifier{}
	amazon := catalog.Product{Name: "Widget", ProductID: "A1", StoreType: "amazon", URL: "http://w"}

	c := New(Config{PostalCodes: []string{"132001"}}, staticReader{products: []catalog.Product{amazon}}, newRegistry(croma), n)
	rep := c.Run(context.Background())

	assert.Equal(t, StateDone, rep.State)
	assert.Empty(t, croma.Calls())
	assert.Empty(t, rep.Results)
	assert.Empty(t, n.messages)
}

func TestRunNoAlertsSendsNothing(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma}
	n := &recordingNotifier{}

	c := New(Config{PostalCodes: []string{"132001", "110016"}}, staticReader{products: []catalog.Product{phoneX}}, newRegistry(croma), n)
	rep := c.Run(context.Background())

	assert.Len(t, croma.Calls(), 2)
	assert.Empty(t, n.messages)
	assert.False(t, rep.Notified)
	assert.Empty(t, rep.Message)
}

func TestRunCatalogFailure(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma}
	n := &recordingNotifier{}
	loadErr := &catalog.DataSourceError{Op: "connect", Err: errors.New("connection refused")}

	c := New(Config{PostalCodes: []string{"132001"}}, staticReader{err: loadErr}, newRegistry(croma), n)
	rep := c.Run(context.Background())

	assert.Equal(t, StateFailed, rep.State)
	assert.ErrorIs(t, rep.Err, loadErr)
	assert.Equal(t, []string{FailureMessage}, n.messages)
	assert.Empty(t, croma.Calls())
	assert.Empty(t, rep.Results)
}

func TestRunProbeTimeoutIsAbsorbed(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	reg := probe.NewRegistry().Register(catalog.StoreCroma,
		probe.NewCroma(probe.CromaConfig{URL: srv.URL}, probe.NewHTTPClient(50*time.Millisecond), logx.Nop()))
	n := &recordingNotifier{}

	c := New(Config{PostalCodes: []string{"132001"}}, staticReader{products: []catalog.Product{phoneX}}, reg, n)
	var rep Report
	require.NotPanics(t, func() { rep = c.Run(context.Background()) })

	assert.Equal(t, StateDone, rep.State)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, probe.Failed, rep.Results[0].Status)
	assert.Empty(t, rep.Alerts)
	assert.Empty(t, n.messages)
}

func TestRunWithoutCredentialsMakesNoCalls(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	tg, err := notify.New(notify.Config{APIURL: srv.URL, ChatIDs: []string{"1", "2"}}, logx.Nop())
	require.NoError(t, err)

	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{{"P1", "132001"}: true}}
	c := New(Config{PostalCodes: []string{"132001"}}, staticReader{products: []catalog.Product{phoneX}}, newRegistry(croma), tg)
	rep := c.Run(context.Background())

	assert.Len(t, rep.Alerts, 1)
	assert.True(t, rep.Notify.Skipped)
	assert.False(t, rep.Notified)
	assert.Zero(t, hits.Load())

	// Failure path too.
	c = New(Config{PostalCodes: []string{"132001"}}, staticReader{err: errors.New("down")}, newRegistry(croma), tg)
	rep = c.Run(context.Background())
	assert.Equal(t, StateFailed, rep.State)
	assert.Zero(t, hits.Load())
}

type countingRecorder struct {
	catalog    int
	probes     map[probe.Status]int
	deliveries int
	states     []State
}

func (r *countingRecorder) ObserveCatalog(n int) { r.catalog = n }
func (r *countingRecorder) ObserveProbe(_ catalog.StoreType, s probe.Status) {
	if r.probes == nil {
		r.probes = map[probe.Status]int{}
	}
	r.probes[s]++
}
func (r *countingRecorder) ObserveDelivery(notify.Report)       { r.deliveries++ }
func (r *countingRecorder) ObserveRun(s State, _ time.Duration) { r.states = append(r.states, s) }

func TestRunRecordsMetrics(t *testing.T) {
	t.Parallel()
	croma := &fakeProbe{retailer: "Croma", store: catalog.StoreCroma, match: map[call]bool{{"P1", "132001"}: true}}
	rec := &countingRecorder{}

	c := New(Config{PostalCodes: []string{"132001", "110016"}}, staticReader{products: []catalog.Product{phoneX}},
		newRegistry(croma), &recordingNotifier{}, WithRecorder(rec), WithLogger(logx.Nop()))
	c.Run(context.Background())

	assert.Equal(t, 1, rec.catalog)
	assert.Equal(t, 1, rec.probes[probe.InStock])
	assert.Equal(t, 1, rec.probes[probe.OutOfStock])
	assert.Equal(t, 1, rec.deliveries)
	assert.Equal(t, []State{StateDone}, rec.states)
}
