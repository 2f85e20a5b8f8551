package config

import "strings"

// Environment variables recognised by broadcastd.
const (
	EnvPort     = "PORT"
	EnvAddr     = "BROADCAST_ADDR"
	EnvBotToken = "BOT_TOKEN"
	EnvLogLevel = "LOG_LEVEL"
)

// ApplyEnv overrides file values from the environment. BROADCAST_ADDR wins
// over PORT, which only sets the port on all interfaces.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	if p := strings.TrimSpace(getenv(EnvPort)); p != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(p, ":")
	}
	if a := strings.TrimSpace(getenv(EnvAddr)); a != "" {
		cfg.Server.Addr = a
	}
	if lv := strings.TrimSpace(getenv(EnvLogLevel)); lv != "" {
		cfg.Logging.Level = lv
	}
}
