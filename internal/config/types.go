package config

// Config is the on-disk configuration of broadcastd (JSON or YAML).
//
// Every section is optional; omitted fields take the values from Default().
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Server    ServerConfig     `json:"server"`
	Broadcast BroadcastConfig  `json:"broadcast"`
	Branding  BrandingConfig   `json:"branding"`
	Provider  ProviderConfig   `json:"provider"`
	Logging   LoggingConfig    `json:"logging"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Schedules []ScheduleConfig `json:"schedules,omitempty" validate:"dive"`
	Systemd   SystemdConfig    `json:"systemd"`
}

// ServerConfig controls the HTTP listener.
//
// WriteTimeout must leave room for a full broadcast: with the default pacing a
// run over 100 recipients takes about 5s plus the send latency.
type ServerConfig struct {
	Addr            string   `json:"addr"`
	Mode            string   `json:"mode,omitempty" validate:"omitempty,oneof=release debug test"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	IdleTimeout     string   `json:"idle_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	CORSOrigins     []string `json:"cors_origins,omitempty"`
}

// BroadcastConfig tunes the dispatch engine.
//
// Defaults:
//   - batch_size: 20
//   - batch_delay: "1s"
//   - feed_limit: 100 (Bot API maximum)
//   - feed_offset: -feed_limit (the most recent window)
//   - drop_pending_updates: false
//   - disable_preview: true
//   - send_timeout: "0s" (only the provider client timeout applies)
//   - rate_per_sec: 0 (no limiter)
//   - max_message_length: 4096
//   - max_failures_reported: 200
type BroadcastConfig struct {
	BatchSize           int    `json:"batch_size,omitempty" validate:"gte=0,lte=1000"`
	BatchDelay          string `json:"batch_delay,omitempty"`
	FeedLimit           int    `json:"feed_limit,omitempty" validate:"gte=0,lte=100"`
	FeedOffset          int    `json:"feed_offset,omitempty"`
	DropPendingUpdates  bool   `json:"drop_pending_updates,omitempty"`
	DisablePreview      *bool  `json:"disable_preview,omitempty"`
	SendTimeout         string `json:"send_timeout,omitempty"`
	RatePerSec          int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	MaxMessageLength    int    `json:"max_message_length,omitempty" validate:"gte=0"`
	MaxFailuresReported int    `json:"max_failures_reported,omitempty" validate:"gte=0"`
}

// BrandingConfig is the identity shown in the message footer and response meta.
// Footers keys are parse modes (html, markdown, plain); {version} and
// {developer} are substituted.
type BrandingConfig struct {
	Developer string            `json:"developer,omitempty"`
	YouTube   string            `json:"youtube,omitempty"`
	Twitter   string            `json:"twitter,omitempty"`
	GitHub    string            `json:"github,omitempty"`
	Version   string            `json:"version,omitempty"`
	Footers   map[string]string `json:"footers,omitempty" validate:"dive,keys,oneof=html markdown plain,endkeys"`
}

// ProviderConfig selects the Telegram client library.
type ProviderConfig struct {
	Driver  string `json:"driver,omitempty" validate:"omitempty,oneof=telebot botapi"`
	APIURL  string `json:"api_url,omitempty" validate:"omitempty,url"`
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the run audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./broadcast.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ScheduleConfig is a broadcast fired by cron.
//
// The bot token is read from token or, preferably, from the environment
// variable named by token_env.
type ScheduleConfig struct {
	Name      string `json:"name" validate:"required"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Spec      string `json:"spec" validate:"required"`
	Timezone  string `json:"timezone,omitempty"`
	Token     string `json:"token,omitempty"`
	TokenEnv  string `json:"token_env,omitempty"`
	Message   string `json:"message" validate:"required"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (s ScheduleConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// SystemdConfig controls sd_notify integration. It is a no-op when the
// process was not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

const (
	DefaultAddr            = ":3000"
	DefaultReadTimeout     = "10s"
	DefaultWriteTimeout    = "2m"
	DefaultIdleTimeout     = "60s"
	DefaultShutdownTimeout = "15s"
	DefaultProviderDriver  = "telebot"
	DefaultProviderTimeout = "15s"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			Mode:            "release",
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Broadcast: BroadcastConfig{BatchDelay: "1s"},
		Provider:  ProviderConfig{Driver: DefaultProviderDriver, Timeout: DefaultProviderTimeout},
		Logging:   LoggingConfig{Level: "info", Console: true},
		Systemd:   SystemdConfig{Notify: true, Watchdog: true},
	}
}

// fillDefaults sets fields a file left empty.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Mode == "" {
		c.Server.Mode = d.Server.Mode
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == "" {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Broadcast.BatchDelay == "" {
		c.Broadcast.BatchDelay = d.Broadcast.BatchDelay
	}
	if c.Provider.Driver == "" {
		c.Provider.Driver = d.Provider.Driver
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = d.Provider.Timeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}
