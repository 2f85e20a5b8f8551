package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "tgbroadcast/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	if st == nil {
		t.Fatalf("open %s returned nil store", driver)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st := openDriver(t, driver)
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i := 1; i <= 5; i++ {
				r := RunRecord{
					RunID:      fmt.Sprintf("run-%d", i),
					StartedAt:  base.Add(time.Duration(i) * time.Minute),
					Origin:     "http",
					Bot:        "demo_bot",
					BotID:      42,
					Status:     StatusFinished,
					ParseMode:  "HTML",
					Total:      i,
					Successful: i - 1,
					Failed:     1,
					Batches:    1,
					DurationMS: int64(i * 100),
				}
				if i == 5 {
					r.Status, r.Error = StatusFailed, "broadcast processing failed: get updates: timeout"
				}
				if err := st.AppendRun(ctx, r); err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
			}

			got, err := st.RecentRuns(ctx, 3)
			if err != nil {
				t.Fatalf("RecentRuns: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d runs", len(got))
			}
			for i, want := range []string{"run-5", "run-4", "run-3"} {
				if got[i].RunID != want {
					t.Fatalf("runs[%d]=%s want %s", i, got[i].RunID, want)
				}
			}
			if got[0].Status != StatusFailed || got[0].Error == "" {
				t.Fatalf("failed run=%+v", got[0])
			}
			if got[1].Bot != "demo_bot" || got[1].Total != 4 || got[1].DurationMS != 400 {
				t.Fatalf("run=%+v", got[1])
			}
			if !got[1].StartedAt.Equal(base.Add(4 * time.Minute)) {
				t.Fatalf("started_at=%v", got[1].StartedAt)
			}

			all, err := st.RecentRuns(ctx, 50)
			if err != nil || len(all) != 5 {
				t.Fatalf("all=%d err=%v", len(all), err)
			}
		})
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Logger{})
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestFileStoreClosed(t *testing.T) {
	st := openDriver(t, "file")
	_ = st.Close()
	if err := st.AppendRun(context.Background(), RunRecord{RunID: "x"}); err != ErrClosed {
		t.Fatalf("err=%v", err)
	}
}
