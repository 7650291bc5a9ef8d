package config

import (
	"slices"
	"strings"

	logx "stockbot/pkg/logx"
)

// SummarizeChange returns the changed sections and safe structured attrs for
// logging. Secrets (database url, bot token) are reported only as "set".
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Database != newCfg.Database {
		changed = append(changed, "database")
		attrs = append(attrs,
			logx.String("database.driver", newCfg.Database.Driver),
			logx.String("database.store_type", newCfg.Database.StoreType),
			logx.Bool("database.url_set", strings.TrimSpace(newCfg.Database.URL) != ""),
			logx.Bool("database.with_affiliate_link", newCfg.Database.WithAffiliateLink),
		)
	}

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		!slices.Equal(oldCfg.Telegram.ChatIDs, newCfg.Telegram.ChatIDs) ||
		oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL ||
		oldCfg.Telegram.Timeout != newCfg.Telegram.Timeout {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.chat_ids", len(newCfg.Telegram.ChatIDs)+btoi(newCfg.Telegram.ChatID != "")),
		)
	}

	if !slices.Equal(oldCfg.PostalCodes, newCfg.PostalCodes) {
		changed = append(changed, "postal_codes")
		attrs = append(attrs, logx.Strings("postal_codes", newCfg.PostalCodes))
	}

	if oldCfg.Probes != newCfg.Probes {
		changed = append(changed, "probes")
		attrs = append(attrs, logx.Duration("probes.timeout", newCfg.ProbeTimeout()))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.String("metrics.addr", newCfg.Metrics.Addr))
	}

	return changed, attrs
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
