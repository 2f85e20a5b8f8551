package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tgbroadcast/internal/transport"
)

type fakeProvider struct {
	openErr error
	sess    *fakeSession
	opened  atomic.Int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Open(ctx context.Context, token string) (transport.Session, error) {
	p.opened.Add(1)
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.sess, nil
}

type sentMsg struct {
	chatID int64
	text   string
	opts   transport.SendOptions
}

type fakeSession struct {
	updates    []transport.Update
	webhookErr error
	feedErr    error
	// failFor maps a chat id to the error its send returns.
	failFor map[int64]error
	panicOn int64
	delay   time.Duration

	mu         sync.Mutex
	sent       []sentMsg
	feedLimit  int
	feedOffset int
	dropped    bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (s *fakeSession) Bot() transport.Bot { return transport.Bot{ID: 42, Username: "fake_bot"} }

func (s *fakeSession) ClearWebhook(ctx context.Context, dropPending bool) error {
	s.mu.Lock()
	s.dropped = dropPending
	s.mu.Unlock()
	return s.webhookErr
}

func (s *fakeSession) RecentUpdates(ctx context.Context, limit, offset int) ([]transport.Update, error) {
	s.mu.Lock()
	s.feedLimit, s.feedOffset = limit, offset
	s.mu.Unlock()
	return s.updates, s.feedErr
}

func (s *fakeSession) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		cur := s.maxInflight.Load()
		if n <= cur || s.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panicOn != 0 && chatID == s.panicOn {
		panic("boom")
	}
	s.mu.Lock()
	s.sent = append(s.sent, sentMsg{chatID: chatID, text: text, opts: *opt})
	s.mu.Unlock()
	if err, ok := s.failFor[chatID]; ok {
		return err
	}
	return nil
}

func (s *fakeSession) sentTo() map[int64]sentMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]sentMsg, len(s.sent))
	for _, m := range s.sent {
		out[m.chatID] = m
	}
	return out
}

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func msgUpdate(id int, from int64) transport.Update {
	return transport.Update{
		ID:      id,
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ID: id, ChatID: from, FromID: from, Text: "hi"},
	}
}

func usersFeed(ids ...int64) []transport.Update {
	out := make([]transport.Update, 0, len(ids))
	for i, id := range ids {
		out = append(out, msgUpdate(i+1, id))
	}
	return out
}

var errBlocked = &transport.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}
