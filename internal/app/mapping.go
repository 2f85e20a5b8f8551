package app

import (
	"fmt"
	"strings"
	"time"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
	"tgbroadcast/internal/storage"
	"tgbroadcast/internal/transport"
	"tgbroadcast/internal/transport/telegram/adapter"
	"tgbroadcast/internal/transport/telegram/botapi"
	logx "tgbroadcast/pkg/logx"
)

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	if cfg == nil {
		return broadcast.DefaultConfig(), nil
	}
	b := cfg.Broadcast
	delay, err := config.ParseDurationField("broadcast.batch_delay", b.BatchDelay)
	if err != nil {
		return broadcast.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("broadcast.send_timeout", b.SendTimeout)
	if err != nil {
		return broadcast.Config{}, err
	}
	branding, err := mapBranding(cfg.Branding)
	if err != nil {
		return broadcast.Config{}, err
	}
	disablePreview := true
	if b.DisablePreview != nil {
		disablePreview = *b.DisablePreview
	}
	return broadcast.Config{
		BatchSize:           b.BatchSize,
		BatchDelay:          delay,
		FeedLimit:           b.FeedLimit,
		FeedOffset:          b.FeedOffset,
		DropPendingUpdates:  b.DropPendingUpdates,
		DisablePreview:      disablePreview,
		SendTimeout:         sendTimeout,
		RatePerSec:          b.RatePerSec,
		MaxMessageLength:    b.MaxMessageLength,
		MaxFailuresReported: b.MaxFailuresReported,
		Branding:            branding,
	}, nil
}

// mapBranding overlays the configured identity on DefaultBranding.
func mapBranding(bc config.BrandingConfig) (broadcast.Branding, error) {
	b := broadcast.DefaultBranding()
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&b.Developer, bc.Developer)
	set(&b.YouTube, bc.YouTube)
	set(&b.Twitter, bc.Twitter)
	set(&b.GitHub, bc.GitHub)
	set(&b.Version, bc.Version)
	if len(bc.Footers) > 0 {
		b.Footers = make(map[broadcast.ParseMode]string, len(bc.Footers))
		for k, tpl := range bc.Footers {
			mode, err := broadcast.ParseParseMode(k)
			if err != nil {
				return broadcast.Branding{}, fmt.Errorf("branding.footers: %w", err)
			}
			b.Footers[mode] = tpl
		}
	}
	return b, nil
}

func mapLogConfig(l config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// NewProvider builds the Telegram driver selected by pc.Driver.
func NewProvider(pc config.ProviderConfig, log logx.Logger) (transport.Provider, error) {
	timeout, err := config.ParseDurationOrDefault("provider.timeout", pc.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	log = log.With(logx.String("comp", "telegram"))
	switch strings.ToLower(strings.TrimSpace(pc.Driver)) {
	case "", "telebot":
		return adapter.New(adapter.Config{APIURL: pc.APIURL, Timeout: timeout}, log), nil
	case "botapi":
		return botapi.New(botapi.Config{APIURL: pc.APIURL, Timeout: timeout}, log), nil
	default:
		return nil, fmt.Errorf("unknown provider.driver: %s", pc.Driver)
	}
}
