package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"tgbroadcast/internal/transport"
	"tgbroadcast/internal/transport/telegram/fakeapi"
	logx "tgbroadcast/pkg/logx"
)

func newProvider(t *testing.T) (*Provider, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.New("good")
	t.Cleanup(srv.Close)
	return New(Config{APIURL: srv.URL, Timeout: 2 * time.Second}, logx.Nop()), srv
}

func TestOpenRejectsBadToken(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.Open(context.Background(), "bad")
	if !errors.Is(err, transport.ErrInvalidToken) {
		t.Fatalf("err=%v want ErrInvalidToken", err)
	}
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 401 {
		t.Fatalf("api error=%v", apiErr)
	}
}

func TestOpenEmptyTokenSkipsNetwork(t *testing.T) {
	p, srv := newProvider(t)
	if _, err := p.Open(context.Background(), "   "); !errors.Is(err, transport.ErrInvalidToken) {
		t.Fatalf("err=%v", err)
	}
	if n := len(srv.Calls("getMe")); n != 0 {
		t.Fatalf("getMe calls=%d", n)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	p, srv := newProvider(t)
	if p.Name() != "telebot" {
		t.Fatalf("name=%q", p.Name())
	}
	srv.Updates = []map[string]any{
		fakeapi.MessageUpdate(1, 11),
		fakeapi.ChannelPostUpdate(2),
		fakeapi.MessageUpdate(3, 22),
	}
	srv.Blocked["33"] = true
	ctx := context.Background()

	s, err := p.Open(ctx, "good")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if me := s.Bot(); me.Username != "demo_bot" || me.ID != 777 {
		t.Fatalf("bot=%+v", me)
	}

	if err := s.ClearWebhook(ctx, true); err != nil {
		t.Fatalf("ClearWebhook: %v", err)
	}
	if c := srv.Calls("deleteWebhook"); len(c) != 1 || c[0].Params["drop_pending_updates"] != "true" {
		t.Fatalf("deleteWebhook calls=%+v", c)
	}

	ups, err := s.RecentUpdates(ctx, 100, -100)
	if err != nil {
		t.Fatalf("RecentUpdates: %v", err)
	}
	if len(ups) != 3 {
		t.Fatalf("updates=%d", len(ups))
	}
	if id, ok := ups[0].SenderID(); !ok || id != 11 {
		t.Fatalf("first sender=%d ok=%v", id, ok)
	}
	if ups[1].Kind != transport.UpdateOther {
		t.Fatalf("second kind=%s", ups[1].Kind)
	}
	if ups[2].Message == nil || ups[2].Message.FromUsername != "u22" {
		t.Fatalf("third=%+v", ups[2].Message)
	}
	g := srv.Calls("getUpdates")
	if len(g) != 1 || g[0].Params["limit"] != "100" || g[0].Params["offset"] != "-100" {
		t.Fatalf("getUpdates calls=%+v", g)
	}

	opts := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if err := s.SendText(ctx, 11, "<b>hi</b>", opts); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	sent := srv.Calls("sendMessage")
	if len(sent) != 1 {
		t.Fatalf("sendMessage calls=%d", len(sent))
	}
	if p := sent[0].Params; p["chat_id"] != "11" || p["text"] != "<b>hi</b>" || p["parse_mode"] != "HTML" {
		t.Fatalf("params=%v", p)
	}

	err = s.SendText(ctx, 33, "hi", nil)
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		t.Fatalf("blocked err=%v", err)
	}
	if got := transport.Describe(err); got != "Forbidden: bot was blocked by the user" {
		t.Fatalf("describe=%q", got)
	}
}

func TestSessionHonoursCancelledContext(t *testing.T) {
	p, srv := newProvider(t)
	s, err := p.Open(context.Background(), "good")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendText(ctx, 11, "hi", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if n := len(srv.Calls("sendMessage")); n != 0 {
		t.Fatalf("sendMessage calls=%d", n)
	}
}
