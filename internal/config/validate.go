package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"finalword/internal/task/scheduler"
)

// Validate checks a parsed config. It reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDuration(path, raw, 0)
		add(err)
	}

	switch strings.ToUpper(strings.TrimSpace(c.Logging.Level)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled=true"))
	}
	if c.Logging.Telegram.Enabled && c.Telegram.ChatID == 0 {
		add(errors.New("telegram.chat_id is required when logging.telegram.enabled=true"))
	}

	switch d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(errors.New("storage.path is required when storage.driver=sqlite"))
		}
	case "postgres", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn (or FINALWORD_STORAGE_DSN) is required when storage.driver=postgres"))
		}
	case "", "none":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	if c.Dispatch.Enabled {
		if _, err := scheduler.ParseSchedule(c.Dispatch.Schedule); err != nil {
			add(fmt.Errorf("dispatch.schedule: %w", err))
		}
	}
	if c.Dispatch.BatchSize < 0 {
		add(errors.New("dispatch.batch_size must be >= 0"))
	}
	dur("dispatch.job_timeout", c.Dispatch.JobTimeout)
	dur("dispatch.lease", c.Dispatch.Lease)

	switch strings.ToLower(strings.TrimSpace(c.Notifier.Driver)) {
	case "smtp":
		if strings.TrimSpace(c.Notifier.SMTP.Host) == "" {
			add(errors.New("notifier.smtp.host is required when notifier.driver=smtp"))
		}
		if strings.TrimSpace(c.Notifier.SMTP.From) == "" {
			add(errors.New("notifier.smtp.from is required when notifier.driver=smtp"))
		}
	case "log", "":
	default:
		add(fmt.Errorf("notifier.driver: unknown driver %q", c.Notifier.Driver))
	}
	if c.Notifier.RetryMax < 0 {
		add(errors.New("notifier.retry_max must be >= 0"))
	}
	dur("notifier.retry_base", c.Notifier.RetryBase)
	dur("notifier.retry_max_delay", c.Notifier.RetryMaxDelay)
	dur("notifier.dedup_window", c.Notifier.DedupWindow)

	if c.Ops.Enabled {
		host, _, err := net.SplitHostPort(strings.TrimSpace(c.Ops.Addr))
		if err != nil {
			add(fmt.Errorf("ops.addr: %w", err))
		} else if !isLoopback(host) && strings.TrimSpace(c.Ops.Token) == "" {
			add(fmt.Errorf("ops.token is required when ops.addr (%s) is not loopback", c.Ops.Addr))
		}
	}
	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
