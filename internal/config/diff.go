package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "tgbroadcast/pkg/logx"
)

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeConfigChange returns (1) the changed top-level sections, (2) log
// fields describing the new values and (3) the names of schedules that were
// added, removed or modified. Tokens are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", newCfg.Server.Addr),
			logx.String("server.write_timeout", newCfg.Server.WriteTimeout),
			logx.Int("server.cors_origins", len(newCfg.Server.CORSOrigins)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		b := newCfg.Broadcast
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.batch_size", b.BatchSize),
			logx.String("broadcast.batch_delay", b.BatchDelay),
			logx.Int("broadcast.feed_limit", b.FeedLimit),
			logx.Bool("broadcast.drop_pending_updates", b.DropPendingUpdates),
			logx.Int("broadcast.rate_per_sec", b.RatePerSec),
			logx.String("broadcast.send_timeout", b.SendTimeout),
		)
	}

	if !reflect.DeepEqual(oldCfg.Branding, newCfg.Branding) {
		changed = append(changed, "branding")
		attrs = append(attrs,
			logx.String("branding.version", newCfg.Branding.Version),
			logx.Int("branding.footers", len(newCfg.Branding.Footers)),
		)
	}

	if oldCfg.Provider != newCfg.Provider {
		changed = append(changed, "provider")
		attrs = append(attrs,
			logx.String("provider.driver", newCfg.Provider.Driver),
			logx.Bool("provider.api_url_set", strings.TrimSpace(newCfg.Provider.APIURL) != ""),
			logx.String("provider.timeout", newCfg.Provider.Timeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	schedChanged := diffSchedules(oldCfg.Schedules, newCfg.Schedules)
	if len(schedChanged) > 0 {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.Int("schedules.changed_count", len(schedChanged)),
			logx.Int("schedules.enabled_count", countEnabled(newCfg.Schedules)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, schedChanged
}

func countEnabled(s []ScheduleConfig) int {
	n := 0
	for _, v := range s {
		if v.IsEnabled() {
			n++
		}
	}
	return n
}

func diffSchedules(oldS, newS []ScheduleConfig) []string {
	index := func(in []ScheduleConfig) map[string]uint64 {
		m := make(map[string]uint64, len(in))
		for _, s := range in {
			b, _ := json.Marshal(s)
			m[s.Name] = hashBytes(b)
		}
		return m
	}
	o, n := index(oldS), index(newS)

	out := make([]string, 0)
	for name, h := range n {
		if oh, ok := o[name]; !ok || oh != h {
			out = append(out, name)
		}
	}
	for name := range o {
		if _, ok := n[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
