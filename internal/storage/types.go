package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures the run audit store.
//
// Driver values:
//   - "file": JSON Lines file, no database
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// KeepRuns bounds the sqlite table; older rows are pruned. 0 means DefaultKeepRuns.
	KeepRuns int
}

const DefaultKeepRuns = 10000

// Run status values.
const (
	StatusFinished = "finished"
	StatusEmpty    = "empty"
	StatusFailed   = "failed"
)

// RunRecord is one broadcast run as kept in the audit log. It never holds the
// bot token, the message body or recipient ids.
type RunRecord struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Origin        string    `json:"origin"`
	Bot           string    `json:"bot,omitempty"`
	BotID         int64     `json:"bot_id,omitempty"`
	Status        string    `json:"status"`
	ParseMode     string    `json:"parse_mode"`
	Total         int       `json:"total"`
	Successful    int       `json:"successful"`
	Failed        int       `json:"failed"`
	MessageLength int       `json:"message_length,omitempty"`
	Batches       int       `json:"batches"`
	DurationMS    int64     `json:"duration_ms"`
	Warning       string    `json:"warning,omitempty"`
	Error         string    `json:"error,omitempty"`
}
