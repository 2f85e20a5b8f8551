package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	runs, unsubRuns := b.Subscribe(4, TopicRunFinished, TopicRunFailed)
	defer unsubRuns()

	b.Publish(Event{Type: TopicConfig})
	b.Publish(Event{Type: TopicRunFinished, Data: "r1"})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events, want 2", got)
	}
	if got := len(runs); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-runs
	if e.Data != "r1" {
		t.Fatalf("data=%v", e.Data)
	}
	if e.Time.IsZero() {
		t.Fatalf("expected publish to stamp time")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TopicRunStarted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if got := b.Dropped(); got != 9 {
		t.Fatalf("dropped=%d want 9", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(Event{Type: TopicRunFinished})
}
