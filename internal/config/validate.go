package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	logx "tgbroadcast/pkg/logx"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// CronParser accepts an optional seconds field and descriptors such as @daily.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks field constraints and cross-field rules. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := structValidator().Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.idle_timeout":     cfg.Server.IdleTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
		"broadcast.batch_delay":   cfg.Broadcast.BatchDelay,
		"broadcast.send_timeout":  cfg.Broadcast.SendTimeout,
		"provider.timeout":        cfg.Provider.Timeout,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr: required"))
	}
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		if d != "" && d != "none" && strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", d))
		}
	}

	seen := map[string]bool{}
	for i, s := range cfg.Schedules {
		p := fmt.Sprintf("schedules[%d]", i)
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate schedule %q", p, s.Name))
		}
		seen[s.Name] = true
		if _, err := CronParser.Parse(ScheduleSpec(s)); err != nil {
			errs = append(errs, fmt.Errorf("%s.spec: %w", p, err))
		}
		if strings.TrimSpace(s.Token) == "" && strings.TrimSpace(s.TokenEnv) == "" {
			errs = append(errs, fmt.Errorf("%s: token or token_env is required", p))
		}
		switch strings.ToLower(strings.TrimSpace(s.ParseMode)) {
		case "", "html", "markdown", "md", "plain", "text", "none":
		default:
			errs = append(errs, fmt.Errorf("%s.parse_mode: unsupported %q", p, s.ParseMode))
		}
	}
	return errors.Join(errs...)
}

// ScheduleSpec returns the cron expression of s with its timezone applied.
func ScheduleSpec(s ScheduleConfig) string {
	spec := strings.TrimSpace(s.Spec)
	if tz := strings.TrimSpace(s.Timezone); tz != "" && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec
}
