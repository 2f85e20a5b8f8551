package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
	"tgbroadcast/internal/eventbus"
	"tgbroadcast/internal/storage"
	"tgbroadcast/internal/transport/telegram/fakeapi"
	logx "tgbroadcast/pkg/logx"
)

func noEnv(string) string { return "" }

// newTestApp writes a config pointing at a fake Bot API with two known users.
func newTestApp(t *testing.T, driver string) (*App, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.New("good")
	t.Cleanup(srv.Close)
	srv.Updates = []map[string]any{
		fakeapi.MessageUpdate(1, 11),
		fakeapi.MessageUpdate(2, 22),
		fakeapi.MessageUpdate(3, 11),
	}

	dir := t.TempDir()
	body := fmt.Sprintf(`{
  "server": {"addr": "127.0.0.1:0", "mode": "test", "shutdown_timeout": "2s"},
  "broadcast": {"batch_delay": "0s"},
  "branding": {"version": "v9.9.9"},
  "provider": {"driver": %q, "api_url": %q, "timeout": "2s"},
  "logging": {"level": "error", "console": true},
  "storage": {"driver": "file", "path": %q},
  "systemd": {"notify": false, "watchdog": false}
}`, driver, srv.URL, filepath.Join(dir, "audit"))
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfgm := config.NewConfigManager(path)
	cfgm.SetEnv(noEnv)
	a, err := New(cfgm, WithEnv(noEnv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, srv
}

func TestRunOnceRecordsAudit(t *testing.T) {
	for _, driver := range []string{"telebot", "botapi"} {
		t.Run(driver, func(t *testing.T) {
			a, srv := newTestApp(t, driver)
			defer a.Close()

			rep, err := a.RunOnce(context.Background(), broadcast.Request{Token: "good", Message: "hello", Origin: "cli"})
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if rep.TotalUsers != 2 || rep.Successful != 2 || rep.Failed != 0 {
				t.Fatalf("report=%+v", rep)
			}
			if n := len(srv.Calls("sendMessage")); n != 2 {
				t.Fatalf("sendMessage calls=%d", n)
			}

			runs, err := a.Store().RecentRuns(context.Background(), 10)
			if err != nil {
				t.Fatalf("RecentRuns: %v", err)
			}
			if len(runs) != 1 || runs[0].RunID != rep.RunID || runs[0].Status != storage.StatusFinished || runs[0].Origin != "cli" {
				t.Fatalf("runs=%+v", runs)
			}
			if runs[0].Bot != "demo_bot" {
				t.Fatalf("bot=%q", runs[0].Bot)
			}
		})
	}
}

func TestRunOnceRecordsFailure(t *testing.T) {
	a, _ := newTestApp(t, "botapi")
	defer a.Close()

	if _, err := a.RunOnce(context.Background(), broadcast.Request{Token: "bad", Message: "hello"}); err == nil {
		t.Fatalf("expected error for bad token")
	}
	runs, err := a.Store().RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != storage.StatusFailed || runs[0].Error == "" {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestStartServesBroadcastAndStops(t *testing.T) {
	a, _ := newTestApp(t, "telebot")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := "http://" + a.Addr()
	resp, err := http.Get(base + "/api/broadcast?token=good&message=hi")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var env struct {
		Status string `json:"status"`
		Data   struct {
			Successful int `json:"successful"`
		} `json:"data"`
		Meta struct {
			Version string `json:"version"`
		} `json:"meta"`
	}
	err = json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || env.Data.Successful != 2 || env.Meta.Version != "v9.9.9" {
		t.Fatalf("status=%d env=%+v", resp.StatusCode, env)
	}

	// the recorder writes asynchronously
	deadline := time.Now().Add(3 * time.Second)
	for {
		runs, err := a.Store().RecentRuns(context.Background(), 10)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) == 1 {
			if runs[0].Origin != "http" {
				t.Fatalf("origin=%q", runs[0].Origin)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hresp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	hresp.Body.Close()
	if hresp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", hresp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("supervisor still running after Stop")
	}
}

func TestApplyConfigUpdatesCoordinator(t *testing.T) {
	a, _ := newTestApp(t, "telebot")
	defer a.Close()
	events, unsub := a.bus.Subscribe(1, eventbus.TopicConfig)
	defer unsub()

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Branding.Version = "v10"
	next.Broadcast.BatchSize = 5
	next.Provider.Driver = "botapi"
	a.applyConfig(oldCfg, &next)

	got := a.Coordinator().Config()
	if got.Branding.Version != "v10" || got.BatchSize != 5 {
		t.Fatalf("coordinator config=%+v", got)
	}
	if a.provider() != "botapi" {
		t.Fatalf("provider=%q", a.provider())
	}
	select {
	case e := <-events:
		sections, _ := e.Data.([]string)
		if len(sections) != 3 {
			t.Fatalf("sections=%v", sections)
		}
	default:
		t.Fatalf("no config event")
	}
}

func TestMapBranding(t *testing.T) {
	b, err := mapBranding(config.BrandingConfig{
		Developer: "me",
		Footers:   map[string]string{"plain": "by {developer}", "markdown": "_{version}_"},
	})
	if err != nil {
		t.Fatalf("mapBranding: %v", err)
	}
	if b.Developer != "me" || b.Version != broadcast.DefaultBranding().Version {
		t.Fatalf("branding=%+v", b)
	}
	if got := b.Footer(broadcast.ModePlain); got != "by me" {
		t.Fatalf("plain footer=%q", got)
	}
	if got := b.Footer(broadcast.ModeHTML); got == "" {
		t.Fatalf("html footer should fall back to the default")
	}

	if _, err := mapBranding(config.BrandingConfig{Footers: map[string]string{"rtf": "x"}}); err == nil {
		t.Fatalf("expected error for unknown footer mode")
	}
}

func TestMapBroadcastConfig(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Broadcast.BatchSize = 50
	cfg.Broadcast.SendTimeout = "3s"
	cfg.Broadcast.DisablePreview = &off

	got, err := mapBroadcastConfig(cfg)
	if err != nil {
		t.Fatalf("mapBroadcastConfig: %v", err)
	}
	if got.BatchSize != 50 || got.BatchDelay != time.Second || got.SendTimeout != 3*time.Second || got.DisablePreview {
		t.Fatalf("config=%+v", got)
	}

	def, err := mapBroadcastConfig(config.Default())
	if err != nil {
		t.Fatalf("mapBroadcastConfig(default): %v", err)
	}
	if !def.DisablePreview {
		t.Fatalf("previews should be disabled by default")
	}

	cfg.Broadcast.BatchDelay = "soon"
	if _, err := mapBroadcastConfig(cfg); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", sc: &config.StorageConfig{Driver: "none"}},
		{name: "file", sc: &config.StorageConfig{Driver: "file", Path: "./runs"}, enabled: true},
		{name: "sqlite", sc: &config.StorageConfig{Driver: "SQLite", Path: "./b.db", BusyTimeout: "2s"}, enabled: true},
		{name: "sqlite without path", sc: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", sc: &config.StorageConfig{Driver: "redis", Path: "x"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage = tc.sc
			sc, enabled, err := mapStorageConfig(cfg)
			if (err != nil) != tc.wantErr || enabled != tc.enabled {
				t.Fatalf("enabled=%v err=%v", enabled, err)
			}
			if tc.name == "sqlite" && (sc.Driver != "sqlite" || sc.BusyTimeout != 2*time.Second) {
				t.Fatalf("storage config=%+v", sc)
			}
		})
	}
}

func TestNewProviderSelectsDriver(t *testing.T) {
	for driver, want := range map[string]string{"": "telebot", "telebot": "telebot", "BotAPI": "botapi"} {
		p, err := NewProvider(config.ProviderConfig{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("%q: %v", driver, err)
		}
		if p.Name() != want {
			t.Fatalf("%q: name=%q want %q", driver, p.Name(), want)
		}
	}
	if _, err := NewProvider(config.ProviderConfig{Driver: "grpc"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := NewProvider(config.ProviderConfig{Timeout: "fast"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for bad timeout")
	}
}

func TestRunRecordStatus(t *testing.T) {
	ev := broadcast.RunEvent{RunID: "r", Total: 3, Successful: 2, Failed: 1, Duration: 1500 * time.Millisecond}
	if r := runRecord(eventbus.TopicRunFinished, ev); r.Status != storage.StatusFinished || r.DurationMS != 1500 {
		t.Fatalf("record=%+v", r)
	}
	if r := runRecord(eventbus.TopicRunFinished, broadcast.RunEvent{RunID: "r"}); r.Status != storage.StatusEmpty {
		t.Fatalf("status=%q", r.Status)
	}
	if r := runRecord(eventbus.TopicRunFailed, broadcast.RunEvent{RunID: "r", Error: "boom"}); r.Status != storage.StatusFailed || r.Error != "boom" {
		t.Fatalf("record=%+v", r)
	}
}
