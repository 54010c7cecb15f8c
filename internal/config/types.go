package config

// Config is the on-disk configuration (JSON or YAML; unknown fields are
// rejected). Durations are Go duration strings ("500ms", "1m", "168h").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Notifier NotifierConfig `json:"notifier"`
	Ops      OpsConfig      `json:"ops"`
	Events   EventsConfig   `json:"events"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to the ops chat
// configured under telegram.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the ops alert destination. Token may come from
// FINALWORD_TELEGRAM_TOKEN instead of the file.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/finalword.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls the cadence and limits of the dispatch loop.
type DispatchConfig struct {
	Enabled    bool   `json:"enabled"`
	Schedule   string `json:"schedule"`
	BatchSize  int    `json:"batch_size"`
	JobTimeout string `json:"job_timeout"`
	Lease      string `json:"lease"`
	Timezone   string `json:"timezone,omitempty"`
}

type NotifierConfig struct {
	Driver        string     `json:"driver"` // smtp | log
	RatePerSec    int        `json:"rate_per_sec"`
	RetryMax      int        `json:"retry_max"`
	RetryBase     string     `json:"retry_base"`
	RetryMaxDelay string     `json:"retry_max_delay"`
	DedupWindow   string     `json:"dedup_window"`
	BaseURL       string     `json:"base_url,omitempty"`
	SMTP          SMTPConfig `json:"smtp"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // or FINALWORD_SMTP_PASSWORD
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	StartTLS bool   `json:"starttls"`
}

// OpsConfig controls the operator HTTP server (/healthz, /metrics, pprof).
//
// Security note: bind to loopback, or set a token.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof"`
	Token   string `json:"token,omitempty"` // bearer token (do not log)
}

// EventsConfig enables forwarding of domain events to NATS.
type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}
