// Package botapi is an alternative Telegram provider built on
// github.com/go-telegram-bot-api/telegram-bot-api/v5.
//
// It exists next to the telebot driver so deployments can pick whichever client
// behaves better behind their proxy; both satisfy transport.Provider.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbroadcast/internal/transport"
	logx "tgbroadcast/pkg/logx"
)

type Config struct {
	// APIURL overrides the Bot API base URL (empty means api.telegram.org).
	APIURL  string
	Timeout time.Duration
}

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

func (p *Provider) Name() string { return "botapi" }

func (p *Provider) endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(p.cfg.APIURL), "/")
	if base == "" {
		return tgbotapi.APIEndpoint
	}
	return base + "/bot%s/%s"
}

func (p *Provider) Open(ctx context.Context, token string) (transport.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, transport.ErrInvalidToken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// NewBotAPIWithClient calls getMe.
	bot, err := tgbotapi.NewBotAPIWithClient(token, p.endpoint(), p.client)
	if err != nil {
		nerr := normalize(err)
		var apiErr *transport.APIError
		if errors.As(nerr, &apiErr) {
			return nil, fmt.Errorf("%w: %w", transport.ErrInvalidToken, nerr)
		}
		return nil, nerr
	}
	me := transport.Bot{ID: bot.Self.ID, Username: bot.Self.UserName}
	p.log.Debug("telegram session opened", logx.Int64("bot_id", me.ID), logx.String("bot", me.Username))
	return &session{api: bot, me: me}, nil
}

type session struct {
	api *tgbotapi.BotAPI
	me  transport.Bot
}

func (s *session) Bot() transport.Bot { return s.me }

func (s *session) ClearWebhook(ctx context.Context, dropPending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending})
	return normalize(err)
}

func (s *session) RecentUpdates(ctx context.Context, limit, offset int) ([]transport.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ups, err := s.api.GetUpdates(tgbotapi.UpdateConfig{Offset: offset, Limit: limit, Timeout: 0})
	if err != nil {
		return nil, normalize(err)
	}
	out := make([]transport.Update, 0, len(ups))
	for _, u := range ups {
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
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opt.ParseMode
	msg.DisableWebPagePreview = opt.DisablePreview
	_, err := s.api.Send(msg)
	return normalize(err)
}

func convertUpdate(u tgbotapi.Update) transport.Update {
	m := u.Message
	if m == nil {
		return transport.Update{ID: u.UpdateID, Kind: transport.UpdateOther}
	}
	msg := &transport.Message{ID: m.MessageID, Text: m.Text}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.From != nil {
		msg.FromID = m.From.ID
		msg.FromUsername = m.From.UserName
	}
	return transport.Update{ID: u.UpdateID, Kind: transport.UpdateMessage, Message: msg}
}

func normalize(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &transport.APIError{Code: apiErr.Code, Description: apiErr.Message}
	}
	return err
}
