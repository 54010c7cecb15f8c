package config

import "strings"

const (
	DefaultSchedule   = "@every 1m"
	DefaultOpsAddr    = "127.0.0.1:9090"
	DefaultSubject    = "finalword"
	DefaultSQLitePath = "./data/finalword.db"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "INFO", Console: true},
		Storage:  StorageConfig{Driver: "sqlite"},
		Dispatch: DispatchConfig{Enabled: true},
		Notifier: NotifierConfig{Driver: "log"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values. It never overrides explicit settings.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Telegram.MinLevel == "" {
		c.Logging.Telegram.MinLevel = "WARN"
	}
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = 1
	}

	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if isSQLite(c.Storage.Driver) && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultSQLitePath
	}
	if c.Storage.BusyTimeout == "" {
		c.Storage.BusyTimeout = "1s"
	}

	if strings.TrimSpace(c.Dispatch.Schedule) == "" {
		c.Dispatch.Schedule = DefaultSchedule
	}
	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = 10
	}
	if c.Dispatch.JobTimeout == "" {
		c.Dispatch.JobTimeout = "30s"
	}
	if c.Dispatch.Lease == "" {
		c.Dispatch.Lease = "2m"
	}

	if strings.TrimSpace(c.Notifier.Driver) == "" {
		c.Notifier.Driver = "smtp"
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = 5
	}
	if c.Notifier.RetryBase == "" {
		c.Notifier.RetryBase = "500ms"
	}
	if c.Notifier.RetryMaxDelay == "" {
		c.Notifier.RetryMaxDelay = "10s"
	}
	if c.Notifier.DedupWindow == "" {
		c.Notifier.DedupWindow = "168h"
	}
	if c.Notifier.SMTP.Port == 0 {
		c.Notifier.SMTP.Port = 587
	}

	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
	if strings.TrimSpace(c.Events.SubjectPrefix) == "" {
		c.Events.SubjectPrefix = DefaultSubject
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
