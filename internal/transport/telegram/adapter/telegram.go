package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgbroadcast/internal/transport"
	logx "tgbroadcast/pkg/logx"
)

// Config configures the telebot-backed provider.
type Config struct {
	// APIURL overrides the Bot API base URL (empty means api.telegram.org).
	APIURL string
	// Timeout bounds every Bot API round-trip.
	Timeout time.Duration
}

// Provider opens Telegram sessions using gopkg.in/telebot.v4.
type Provider struct {
	cfg    Config
	log    logx.Logger
	client *http.Client
}

func New(cfg Config, log logx.Logger) *Provider {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{cfg: cfg, log: log, client: &http.Client{Timeout: timeout}}
}

func (p *Provider) Name() string { return "telebot" }

// Open verifies token with getMe and returns a session bound to it.
func (p *Provider) Open(ctx context.Context, token string) (transport.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, transport.ErrInvalidToken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// NewBot performs getMe unless Offline is set.
	b, err := tele.NewBot(tele.Settings{
		URL:    strings.TrimRight(strings.TrimSpace(p.cfg.APIURL), "/"),
		Token:  token,
		Client: p.client,
	})
	if err != nil {
		nerr := normalize(err)
		var apiErr *transport.APIError
		if errors.As(nerr, &apiErr) {
			return nil, fmt.Errorf("%w: %w", transport.ErrInvalidToken, nerr)
		}
		return nil, nerr
	}

	me := transport.Bot{}
	if b.Me != nil {
		me = transport.Bot{ID: b.Me.ID, Username: b.Me.Username}
	}
	p.log.Debug("telegram session opened", logx.Int64("bot_id", me.ID), logx.String("bot", me.Username))
	return &session{bot: b, me: me}, nil
}

type session struct {
	bot *tele.Bot
	me  transport.Bot
}

func (s *session) Bot() transport.Bot { return s.me }

func (s *session) ClearWebhook(ctx context.Context, dropPending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return normalize(s.bot.RemoveWebhook(dropPending))
}

func (s *session) RecentUpdates(ctx context.Context, limit, offset int) ([]transport.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := map[string]any{
		"limit":   limit,
		"offset":  offset,
		"timeout": 0,
	}
	data, err := s.bot.Raw("getUpdates", params)
	if err != nil {
		return nil, normalize(err)
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}

	out := make([]transport.Update, 0, len(resp.Result))
	for _, u := range resp.Result {
		out = append(out, convertUpdate(u))
	}
	return out, nil
}

func (s *session) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
	})
	return normalize(err)
}

func convertUpdate(u tele.Update) transport.Update {
	m := u.Message
	if m == nil {
		return transport.Update{ID: u.ID, Kind: transport.UpdateOther}
	}
	msg := &transport.Message{ID: m.ID, Text: m.Text}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return transport.Update{ID: u.ID, Kind: transport.UpdateMessage, Message: msg}
}

var reTelegramErr = regexp.MustCompile(`^telegram: (.*) \((\d+)\)$`)

// normalize maps telebot's error zoo onto *transport.APIError.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var te *tele.Error
	if errors.As(err, &te) {
		return &transport.APIError{Code: te.Code, Description: te.Description}
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return &transport.APIError{Code: http.StatusTooManyRequests, Description: fmt.Sprintf("Too Many Requests: retry after %d", fe.RetryAfter)}
	}
	if m := reTelegramErr.FindStringSubmatch(err.Error()); len(m) == 3 {
		code, _ := strconv.Atoi(m[2])
		return &transport.APIError{Code: code, Description: m[1]}
	}
	return err
}
