package notifier

import (
	"context"
	"time"

	"finalword/internal/model"
)

// Config controls the delivery pipeline.
type Config struct {
	Driver        string // "smtp" or "log"
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
	BaseURL       string
	SMTP          SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool
}

// Envelope is one delivery request.
type Envelope struct {
	// Key identifies this delivery for dedup. Empty disables dedup.
	Key        string
	MessageID  int64
	Type       model.MessageType
	Recipients []string
	Subject    string
	Text       string
	SenderName string
}

// Notifier is the delivery capability consumed by the dispatch loop.
type Notifier interface {
	Send(ctx context.Context, env Envelope) (bool, error)
}

// Mail is a rendered message handed to a Transport.
type Mail struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Transport performs the actual delivery. Errors wrapped with Permanent
// mark a definitive rejection; anything else is treated as transient.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, m Mail) error
}

// DedupStore persists delivery keys across restarts.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	MessageID int64     `json:"message_id"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
}

// SendEvent is published on the event bus for every send outcome.
type SendEvent struct {
	MessageID int64     `json:"message_id"`
	Transport string    `json:"transport"`
	Key       string    `json:"key,omitempty"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
