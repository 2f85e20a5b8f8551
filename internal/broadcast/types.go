package broadcast

import (
	"fmt"
	"strings"
	"time"
)

// ParseMode is the markup interpretation applied to a broadcast body.
type ParseMode int

const (
	ModeHTML ParseMode = iota
	ModePlain
	ModeMarkdown
)

// ParseParseMode accepts the spellings callers commonly send.
// An empty string selects the default (HTML).
func ParseParseMode(raw string) (ParseMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "html":
		return ModeHTML, nil
	case "markdown", "md":
		return ModeMarkdown, nil
	case "plain", "text", "none":
		return ModePlain, nil
	default:
		return ModeHTML, fmt.Errorf("%w: unsupported parse_mode %q (use HTML, Markdown or Plain)", ErrInvalidInput, raw)
	}
}

func (m ParseMode) String() string {
	switch m {
	case ModePlain:
		return "Plain"
	case ModeMarkdown:
		return "Markdown"
	default:
		return "HTML"
	}
}

// BotAPI returns the Bot API parse_mode value ("" for plain text).
func (m ParseMode) BotAPI() string {
	switch m {
	case ModePlain:
		return ""
	case ModeMarkdown:
		return "Markdown"
	default:
		return "HTML"
	}
}

// Request is one accepted broadcast call.
type Request struct {
	Token     string
	Message   string
	ParseMode ParseMode
	// Origin names the caller for logs and the run audit ("http", "cli", "schedule:<name>").
	Origin string
}

// Outcome is the delivery result for a single recipient.
type Outcome struct {
	Recipient int64
	Sent      bool
	Reason    string
}

// Failure is a failed recipient as reported to the caller.
type Failure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

// Report is the aggregate result of one broadcast run.
type Report struct {
	RunID           string    `json:"run_id"`
	TotalUsers      int       `json:"total_users"`
	Successful      int       `json:"successful"`
	Failed          int       `json:"failed"`
	ParseMode       string    `json:"parse_mode"`
	DurationSeconds float64   `json:"duration_seconds"`
	MessageLength   int       `json:"message_length,omitempty"`
	BatchSize       int       `json:"batch_size"`
	Batches         int       `json:"batches"`
	FailedUsers     []Failure `json:"failed_users,omitempty"`
	Warning         string    `json:"warning,omitempty"`

	StartedAt time.Time `json:"-"`
	Bot       string    `json:"-"`
	BotID     int64     `json:"-"`
}

// Branding is the process-wide identity shown in the footer and response meta.
type Branding struct {
	Developer string
	YouTube   string
	Twitter   string
	GitHub    string
	Version   string
	// Footers maps a parse mode to its footer template; {version} and {developer}
	// are substituted. A mode without an entry falls back to DefaultFooters.
	Footers map[ParseMode]string
}

// Config is the tunable part of the coordinator. Zero fields fall back to defaults.
type Config struct {
	BatchSize           int
	BatchDelay          time.Duration
	FeedLimit           int
	FeedOffset          int
	DropPendingUpdates  bool
	DisablePreview      bool
	SendTimeout         time.Duration
	RatePerSec          int
	MaxMessageLength    int
	MaxFailuresReported int
	Branding            Branding
}

const (
	DefaultBatchSize           = 20
	DefaultBatchDelay          = time.Second
	DefaultFeedLimit           = 100
	DefaultFeedOffset          = -100
	DefaultMaxMessageLength    = 4096
	DefaultMaxFailuresReported = 200

	NoRecipientsWarning = "No active users found in recent updates"
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.FeedLimit <= 0 || c.FeedLimit > 100 {
		c.FeedLimit = DefaultFeedLimit
	}
	if c.FeedOffset == 0 {
		c.FeedOffset = -c.FeedLimit
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.MaxFailuresReported <= 0 {
		c.MaxFailuresReported = DefaultMaxFailuresReported
	}
	return c
}

// DefaultConfig mirrors the behaviour of the public broadcast endpoint.
func DefaultConfig() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		BatchDelay:     DefaultBatchDelay,
		FeedLimit:      DefaultFeedLimit,
		FeedOffset:     DefaultFeedOffset,
		DisablePreview: true,
		Branding:       DefaultBranding(),
	}.withDefaults()
}
