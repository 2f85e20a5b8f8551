package httpapi

import (
	"time"

	"tgbroadcast/internal/broadcast"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Meta is attached to every response.
type Meta struct {
	Developer string `json:"developer"`
	YouTube   string `json:"youtube"`
	Twitter   string `json:"twitter"`
	GitHub    string `json:"github"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Envelope is the JSON body of every response.
type Envelope struct {
	Status       string            `json:"status"`
	Message      string            `json:"message,omitempty"`
	Data         any               `json:"data,omitempty"`
	Endpoints    map[string]string `json:"endpoints,omitempty"`
	Usage        map[string]string `json:"usage,omitempty"`
	ErrorDetails string            `json:"error_details,omitempty"`
	Meta         Meta              `json:"meta"`
}

func newMeta(b broadcast.Branding, now time.Time) Meta {
	return Meta{
		Developer: b.Developer,
		YouTube:   b.YouTube,
		Twitter:   b.Twitter,
		GitHub:    b.GitHub,
		Version:   b.Version,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
