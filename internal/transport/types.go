package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateOther   UpdateKind = "other"
)

// Update is a single entry of the bot's recent update feed.
type Update struct {
	ID      int
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64 // 0 when the message has no sender (channel posts)
	FromUsername string
	Text         string
}

// SenderID returns the originating user of the update, if any.
func (u Update) SenderID() (int64, bool) {
	if u.Message == nil || u.Message.FromID == 0 {
		return 0, false
	}
	return u.Message.FromID, true
}

// Bot identifies the account a Session is authenticated as.
type Bot struct {
	ID       int64
	Username string
}

// SendOptions controls how the provider renders an outgoing text.
// ParseMode uses Bot API spelling ("HTML", "Markdown"; empty for plain text).
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Provider opens authenticated sessions against a messaging provider.
// Open verifies the credential with a single round-trip.
type Provider interface {
	Name() string
	Open(ctx context.Context, token string) (Session, error)
}

// Session is a verified, read-only handle reused for every send of one broadcast run.
type Session interface {
	Bot() Bot
	// ClearWebhook removes any configured webhook so updates can be polled.
	ClearWebhook(ctx context.Context, dropPending bool) error
	// RecentUpdates fetches one bounded window of the update feed.
	RecentUpdates(ctx context.Context, limit, offset int) ([]Update, error)
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
}

// ErrInvalidToken is returned by Provider.Open when the provider rejects the credential.
var ErrInvalidToken = errors.New("invalid bot token")

// APIError is a provider-side rejection normalized across drivers.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telegram: %s (%d)", e.Description, e.Code)
	}
	return "telegram: " + e.Description
}

// Unauthorized reports whether the rejection means the credential itself is bad.
func (e *APIError) Unauthorized() bool {
	return e.Code == 401 || e.Code == 404 || strings.EqualFold(e.Description, "Unauthorized")
}

// Describe returns the provider's description of err when available.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Description) != "" {
		return apiErr.Description
	}
	return err.Error()
}
