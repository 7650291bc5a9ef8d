package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	tele "gopkg.in/telebot.v4"

	logx "stockbot/pkg/logx"
)

// DefaultTimeout bounds one sendMessage call.
const DefaultTimeout = 5 * time.Second

type Config struct {
	Token   string
	ChatIDs []string

	// APIURL overrides the Bot API base URL (tests, local bot API servers).
	APIURL  string
	Timeout time.Duration
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	ChatID string
	Err    error
}

// Report summarizes one Send call. Failures are recorded, never returned.
type Report struct {
	// Skipped is true when credentials are missing and nothing was attempted.
	Skipped    bool
	Deliveries []Delivery
}

func (r Report) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Deliveries) - r.Delivered() }

// Telegram delivers messages to a fixed list of chats through the Bot API.
type Telegram struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

// New builds the notifier. With no token or no recipients the notifier is
// inert: Send logs and reports Skipped.
func New(cfg Config, log logx.Logger) (*Telegram, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatIDs = Recipients("", cfg.ChatIDs)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	t := &Telegram{cfg: cfg, log: log}
	if !t.Enabled() {
		return t, nil
	}

	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		URL:   strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		// No getMe round trip at startup; the bot only sends.
		Offline: true,
	})
	if err != nil {
		return nil, errors.New(redact(err.Error(), cfg.Token))
	}
	t.bot = b
	return t, nil
}

// Enabled reports whether credentials and at least one recipient are configured.
func (t *Telegram) Enabled() bool {
	return t != nil && t.cfg.Token != "" && len(t.cfg.ChatIDs) > 0
}

// Send posts message to every recipient. A failure for one recipient does not
// stop delivery to the rest.
func (t *Telegram) Send(ctx context.Context, message string) Report {
	if !t.Enabled() || t.bot == nil {
		t.log.Warn("telegram bot token or chat ids not set; skipping message")
		return Report{Skipped: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	chunks := splitText(message, textLimit)
	t.log.Info("sending message", logx.Int("recipients", len(t.cfg.ChatIDs)), logx.Int("parts", len(chunks)))

	rep := Report{Deliveries: make([]Delivery, 0, len(t.cfg.ChatIDs))}
	opt := &tele.SendOptions{ParseMode: tele.ModeMarkdown, DisableWebPagePreview: true}
	for _, id := range t.cfg.ChatIDs {
		d := Delivery{ChatID: id}
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				d.Err = err
				break
			}
			if _, err := t.bot.Send(chatRecipient(id), chunk, opt); err != nil {
				d.Err = errors.New(redact(err.Error(), t.cfg.Token))
				break
			}
		}
		if d.Err != nil {
			t.log.Warn("failed to send message", logx.String("chat_id", id), logx.String("err", d.Err.Error()))
		}
		rep.Deliveries = append(rep.Deliveries, d)
	}

	t.log.Info("message sent", logx.Int("delivered", rep.Delivered()), logx.Int("failed", rep.Failed()))
	return rep
}

// Recipients merges a single chat id with a list, dropping blanks and
// duplicates while keeping order.
func Recipients(chatID string, chatIDs []string) []string {
	out := make([]string, 0, len(chatIDs)+1)
	seen := make(map[string]struct{}, len(chatIDs)+1)
	for _, id := range append([]string{chatID}, chatIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// chatRecipient addresses a chat by numeric id or @username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// redact keeps the bot token out of logs; Bot API URLs embed it.
func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}
