package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables recognised by ApplyEnv. Empty values count as unset.
const (
	EnvDatabaseURL     = "DATABASE_URL"
	EnvDatabaseDriver  = "DATABASE_DRIVER"
	EnvStoreType       = "STORE_TYPE"
	EnvAffiliateLink   = "AFFILIATE_LINK"
	EnvTelegramToken   = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID  = "TELEGRAM_CHAT_ID"
	EnvTelegramChatIDs = "TELEGRAM_CHAT_IDS"
	EnvPostalCodes     = "POSTAL_CODES"
	EnvLogLevel        = "LOG_LEVEL"
	EnvSchedule        = "SCHEDULE"
	EnvMetricsAddr     = "METRICS_ADDR"
	EnvPushgatewayURL  = "PUSHGATEWAY_URL"
)

var envKeys = []string{
	EnvDatabaseURL,
	EnvDatabaseDriver,
	EnvStoreType,
	EnvAffiliateLink,
	EnvTelegramToken,
	EnvTelegramChatID,
	EnvTelegramChatIDs,
	EnvPostalCodes,
	EnvLogLevel,
	EnvSchedule,
	EnvMetricsAddr,
	EnvPushgatewayURL,
}

func newEnv() *viper.Viper {
	v := viper.New()
	for _, k := range envKeys {
		_ = v.BindEnv(strings.ToLower(k), k)
	}
	return v
}

// ApplyEnv overlays environment variables onto cfg. Only a malformed
// boolean is an error.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	v := newEnv()
	str := func(key string, dst *string) {
		k := strings.ToLower(key)
		if v.IsSet(k) {
			if s := strings.TrimSpace(v.GetString(k)); s != "" {
				*dst = s
			}
		}
	}

	str(EnvDatabaseURL, &cfg.Database.URL)
	str(EnvDatabaseDriver, &cfg.Database.Driver)
	str(EnvStoreType, &cfg.Database.StoreType)
	str(EnvTelegramToken, &cfg.Telegram.Token)
	str(EnvTelegramChatID, &cfg.Telegram.ChatID)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvSchedule, &cfg.Schedule.Spec)
	str(EnvMetricsAddr, &cfg.Metrics.Addr)
	str(EnvPushgatewayURL, &cfg.Metrics.PushgatewayURL)

	if k := strings.ToLower(EnvTelegramChatIDs); v.IsSet(k) {
		if ids := SplitList(v.GetString(k)); len(ids) > 0 {
			cfg.Telegram.ChatIDs = ids
		}
	}
	if k := strings.ToLower(EnvPostalCodes); v.IsSet(k) {
		if codes := SplitList(v.GetString(k)); len(codes) > 0 {
			cfg.PostalCodes = codes
		}
	}
	if k := strings.ToLower(EnvAffiliateLink); v.IsSet(k) {
		if raw := strings.TrimSpace(v.GetString(k)); raw != "" {
			on, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvAffiliateLink, err)
			}
			cfg.Database.WithAffiliateLink = on
		}
	}
	return nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
