package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative Go duration; empty means 0.
// path names the field in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ServerTimeouts are the parsed durations of a ServerConfig.
type ServerTimeouts struct {
	Read, Write, Idle, Shutdown time.Duration
}

func (s ServerConfig) Timeouts() (ServerTimeouts, error) {
	var (
		t    ServerTimeouts
		errs [4]error
	)
	t.Read, errs[0] = ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 10*time.Second)
	t.Write, errs[1] = ParseDurationField("server.write_timeout", s.WriteTimeout)
	t.Idle, errs[2] = ParseDurationOrDefault("server.idle_timeout", s.IdleTimeout, time.Minute)
	t.Shutdown, errs[3] = ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, 15*time.Second)
	return t, errors.Join(errs[:]...)
}
