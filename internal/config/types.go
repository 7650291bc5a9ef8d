package config

import "time"

const (
	DefaultDriver        = "postgres"
	DefaultPostalCode    = "132001"
	DefaultProbeTimeout  = 10 * time.Second
	DefaultNotifyTimeout = 5 * time.Second
	DefaultDBTimeout     = 10 * time.Second
	DefaultMetricsJob    = "stockbot"
)

// Config is the whole stockbot configuration. Every section is optional;
// values omitted from the file keep their defaults and the environment
// overrides both.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Telegram TelegramConfig `json:"telegram"`

	// PostalCodes are probed for every product, in order.
	PostalCodes []string `json:"postal_codes,omitempty"`

	Probes   ProbesConfig   `json:"probes"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// DatabaseConfig selects the catalog source.
//
// Drivers:
//   - "postgres" / "pgx": jackc/pgx (default)
//   - "pq": lib/pq through database/sql
//   - "sqlite": modernc.org/sqlite, url is a file path or DSN
type DatabaseConfig struct {
	Driver string `json:"driver,omitempty"`
	URL    string `json:"url,omitempty"` // do not log

	// StoreType restricts the catalog to one store ("croma", "flipkart").
	StoreType string `json:"store_type,omitempty"`

	// WithAffiliateLink selects the affiliate_link column (default true).
	// Turn it off for catalogs whose products table lacks the column.
	WithAffiliateLink bool `json:"with_affiliate_link"`

	// Timeout bounds one catalog read.
	Timeout Duration `json:"timeout,omitempty"`

	// Migrate creates the products table when missing (sqlite only).
	Migrate bool `json:"migrate,omitempty"`
}

type TelegramConfig struct {
	Token   string   `json:"token,omitempty"` // do not log
	ChatID  string   `json:"chat_id,omitempty"`
	ChatIDs []string `json:"chat_ids,omitempty"`

	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string `json:"api_url,omitempty"`
	// Timeout applies per send.
	Timeout Duration `json:"timeout,omitempty"`
}

type ProbesConfig struct {
	// Timeout applies per retailer request.
	Timeout  Duration       `json:"timeout,omitempty"`
	Croma    CromaConfig    `json:"croma"`
	Flipkart FlipkartConfig `json:"flipkart"`
}

type CromaConfig struct {
	URL             string `json:"url,omitempty"`
	SubscriptionKey string `json:"subscription_key,omitempty"`
}

type FlipkartConfig struct {
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ScheduleConfig controls watch mode.
//
// Spec accepts cron expressions ("*/15 * * * *", "@hourly", "cron:..."),
// Go durations ("30m", "every:1h") and "HH:MM" intervals.
type ScheduleConfig struct {
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunAtStart bool   `json:"run_at_start,omitempty"`
}

type MetricsConfig struct {
	// Addr serves /metrics and /healthz in watch mode (e.g. "127.0.0.1:9108").
	Addr string `json:"addr,omitempty"`
	// PushgatewayURL receives one push after a one-shot run.
	PushgatewayURL string `json:"pushgateway_url,omitempty"`
	Job            string `json:"job,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:    DatabaseConfig{Driver: DefaultDriver, WithAffiliateLink: true},
		PostalCodes: []string{DefaultPostalCode},
		Logging:     LoggingConfig{Level: "info", Console: true},
		Metrics:     MetricsConfig{Job: DefaultMetricsJob},
	}
}

func (c *Config) DBTimeout() time.Duration {
	return c.Database.Timeout.Or(DefaultDBTimeout)
}

func (c *Config) ProbeTimeout() time.Duration {
	return c.Probes.Timeout.Or(DefaultProbeTimeout)
}

func (c *Config) NotifyTimeout() time.Duration {
	return c.Telegram.Timeout.Or(DefaultNotifyTimeout)
}
