package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "stockbot/pkg/logx"
)

const testToken = "123456:TEST-TOKEN"

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  map[string]bool
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot"+testToken+"/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.calls = append(f.calls, body)
		fail := f.fail[body["chat_id"].(string)]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":1,"type":"private"},"text":"ok"}}`))
	}
}

func (f *fakeBotAPI) chatIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c["chat_id"].(string))
	}
	return out
}

func newFake(t *testing.T, fail ...string) (*fakeBotAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBotAPI{fail: map[string]bool{}}
	for _, id := range fail {
		f.fail[id] = true
	}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestSendSkippedWithoutCredentials(t *testing.T) {
	t.Parallel()
	f, srv := newFake(t)

	for _, cfg := range []Config{
		{ChatIDs: []string{"1"}, APIURL: srv.URL},
		{Token: testToken, APIURL: srv.URL},
		{Token: testToken, ChatIDs: []string{" ", ""}, APIURL: srv.URL},
	} {
		n, err := New(cfg, logx.Nop())
		require.NoError(t, err)
		assert.False(t, n.Enabled())

		rep := n.Send(context.Background(), "hello")
		assert.True(t, rep.Skipped)
		assert.Empty(t, rep.Deliveries)
	}
	assert.Empty(t, f.chatIDs())
}

func TestSendReachesEveryRecipient(t *testing.T) {
	t.Parallel()
	f, srv := newFake(t, "222")

	n, err := New(Config{Token: testToken, ChatIDs: []string{"111", "222", "333"}, APIURL: srv.URL}, logx.Nop())
	require.NoError(t, err)

	rep := n.Send(context.Background(), "🔥 *Stock Alert!*\n\n✅ *In Stock at Croma (132001)*\n[Phone X](http://a)")
	require.False(t, rep.Skipped)
	require.Len(t, rep.Deliveries, 3)
	assert.NoError(t, rep.Deliveries[0].Err)
	assert.Error(t, rep.Deliveries[1].Err)
	assert.NoError(t, rep.Deliveries[2].Err)
	assert.Equal(t, 2, rep.Delivered())
	assert.Equal(t, 1, rep.Failed())

	assert.Equal(t, []string{"111", "222", "333"}, f.chatIDs())
	f.mu.Lock()
	first := f.calls[0]
	f.mu.Unlock()
	assert.Equal(t, "Markdown", first["parse_mode"])
	assert.Equal(t, "true", first["disable_web_page_preview"])
	assert.Contains(t, first["text"], "[Phone X](http://a)")
}

func TestSendTransportErrorIsRedacted(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n, err := New(Config{Token: testToken, ChatIDs: []string{"1", "2"}, APIURL: url}, logx.Nop())
	require.NoError(t, err)

	rep := n.Send(context.Background(), "hello")
	require.Len(t, rep.Deliveries, 2)
	for _, d := range rep.Deliveries {
		require.Error(t, d.Err)
		assert.NotContains(t, d.Err.Error(), testToken)
	}
}

func TestSendCanceledContext(t *testing.T) {
	t.Parallel()
	f, srv := newFake(t)
	n, err := New(Config{Token: testToken, ChatIDs: []string{"1", "2"}, APIURL: srv.URL}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := n.Send(ctx, "hello")
	assert.Equal(t, 2, rep.Failed())
	assert.Empty(t, f.chatIDs())
}

func TestRecipients(t *testing.T) {
	t.Parallel()
	got := Recipients(" 42 ", []string{"7", "", "42", " 9", "7"})
	assert.Equal(t, []string{"42", "7", "9"}, got)
	assert.Empty(t, Recipients("", nil))
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitText("short", 100))

	blocks := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		blocks = append(blocks, "✅ *In Stock at Croma (132001)*\n[Phone "+strings.Repeat("x", 20)+"](http://a)")
	}
	msg := strings.Join(blocks, "\n\n")
	chunks := splitText(msg, 500)
	require.Greater(t, len(chunks), 1)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 500)
		assert.False(t, strings.HasPrefix(c, "\n"))
		total += strings.Count(c, "[Phone")
	}
	assert.Equal(t, 40, total)
}
