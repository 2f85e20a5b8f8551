package schedule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
	logx "tgbroadcast/pkg/logx"
)

type recordingRunner struct {
	mu   sync.Mutex
	reqs []broadcast.Request
	ran  chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, req broadcast.Request) (broadcast.Report, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	select {
	case r.ran <- struct{}{}:
	default:
	}
	return broadcast.Report{RunID: "r"}, nil
}

func TestFromConfig(t *testing.T) {
	off := false
	env := map[string]string{"NEWS_TOKEN": "env-token"}
	defs, err := FromConfig([]config.ScheduleConfig{
		{Name: "news", Spec: "0 9 * * *", TokenEnv: "NEWS_TOKEN", Token: "file-token", Message: "hi", ParseMode: "markdown"},
		{Name: "off", Spec: "@daily", Token: "t", Message: "x", Enabled: &off},
		{Name: "missing", Spec: "@daily", TokenEnv: "NOPE", Message: "x"},
	}, func(k string) string { return env[k] })

	if err == nil || !strings.Contains(err.Error(), `"missing"`) {
		t.Fatalf("err=%v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("defs=%+v", defs)
	}
	d := defs[0]
	if d.Token != "env-token" || d.ParseMode != broadcast.ModeMarkdown || d.Spec != "0 9 * * *" {
		t.Fatalf("def=%+v", d)
	}
}

func TestApplyRejectsBadSpec(t *testing.T) {
	s := New(&recordingRunner{}, logx.Nop(), 0)
	if err := s.Apply([]Definition{{Name: "x", Spec: "every day"}}); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.Apply([]Definition{{Name: "x", Spec: "@daily"}, {Name: "x", Spec: "@hourly"}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestEntriesAfterStartAndReapply(t *testing.T) {
	s := New(&recordingRunner{}, logx.Nop(), 0)
	if err := s.Apply([]Definition{{Name: "b", Spec: "@daily"}, {Name: "a", Spec: "@hourly"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	es := s.Entries()
	if len(es) != 2 || es[0].Name != "a" || es[1].Name != "b" {
		t.Fatalf("entries=%+v", es)
	}
	if es[0].Next.IsZero() {
		t.Fatalf("expected next run time")
	}

	if err := s.Apply([]Definition{{Name: "c", Spec: "@weekly"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	es = s.Entries()
	if len(es) != 1 || es[0].Name != "c" || es[0].Next.IsZero() {
		t.Fatalf("entries after reapply=%+v", es)
	}
}

func TestScheduledRunCarriesOrigin(t *testing.T) {
	r := &recordingRunner{ran: make(chan struct{}, 1)}
	s := New(r, logx.Nop(), time.Second)
	if err := s.Apply([]Definition{{Name: "tick", Spec: "@every 1s", Token: "T", Message: "m"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-r.ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("schedule never fired")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if got := r.reqs[0]; got.Origin != "schedule:tick" || got.Token != "T" || got.Message != "m" {
		t.Fatalf("request=%+v", got)
	}
}
