package app

import (
	"stockbot/internal/catalog"
	"stockbot/internal/checker"
	"stockbot/internal/config"
	"stockbot/internal/notify"
	"stockbot/internal/probe"
	logx "stockbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapCatalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{
		Driver:            cfg.Database.Driver,
		DSN:               cfg.Database.URL,
		StoreType:         catalog.StoreType(cfg.Database.StoreType),
		WithAffiliateLink: cfg.Database.WithAffiliateLink,
		Timeout:           cfg.DBTimeout(),
		Migrate:           cfg.Database.Migrate,
	}
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		Token:   cfg.Telegram.Token,
		ChatIDs: notify.Recipients(cfg.Telegram.ChatID, cfg.Telegram.ChatIDs),
		APIURL:  cfg.Telegram.APIURL,
		Timeout: cfg.NotifyTimeout(),
	}
}

// newProbes registers one probe per supported store. Both share a client
// bounded by the probe timeout.
func newProbes(cfg *config.Config, log logx.Logger) *probe.Registry {
	client := probe.NewHTTPClient(cfg.ProbeTimeout())
	return probe.NewRegistry().
		Register(catalog.StoreCroma, probe.NewCroma(probe.CromaConfig{
			URL:             cfg.Probes.Croma.URL,
			SubscriptionKey: cfg.Probes.Croma.SubscriptionKey,
		}, client, log.With(logx.String("comp", "probe.croma")))).
		Register(catalog.StoreFlipkart, probe.NewFlipkart(probe.FlipkartConfig{
			URL:       cfg.Probes.Flipkart.URL,
			UserAgent: cfg.Probes.Flipkart.UserAgent,
		}, client, log.With(logx.String("comp", "probe.flipkart"))))
}

// buildChecker wires a checker from cfg. Nothing here touches the network.
func buildChecker(cfg *config.Config, log logx.Logger, rec checker.Recorder) (*checker.Checker, error) {
	reader, err := catalog.Open(mapCatalogConfig(cfg), log.With(logx.String("comp", "catalog")))
	if err != nil {
		return nil, err
	}
	tg, err := notify.New(mapNotifyConfig(cfg), log.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}
	if !tg.Enabled() {
		log.Warn("telegram credentials missing; notifications will be skipped")
	}
	opts := []checker.Option{checker.WithLogger(log.With(logx.String("comp", "checker")))}
	if rec != nil {
		opts = append(opts, checker.WithRecorder(rec))
	}
	return checker.New(checker.Config{PostalCodes: cfg.PostalCodes}, reader, newProbes(cfg, log), tg, opts...), nil
}
