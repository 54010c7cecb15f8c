package app

import (
	"fmt"
	"strings"
	"time"

	"finalword/internal/config"
	"finalword/internal/dispatch"
	"finalword/internal/notifier"
	"finalword/internal/observability/ops"
	"finalword/internal/storage"
	"finalword/internal/task/scheduler"
	logx "finalword/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), DSN: sc.DSN, BusyTimeout: busy}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	jobTimeout, err := config.ParseDuration("dispatch.job_timeout", d.JobTimeout, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	lease, err := config.ParseDuration("dispatch.lease", d.Lease, 2*time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	if lease <= jobTimeout {
		return dispatch.Config{}, fmt.Errorf("dispatch.lease (%s) must exceed dispatch.job_timeout (%s)", lease, jobTimeout)
	}
	return dispatch.Config{BatchSize: d.BatchSize, JobTimeout: jobTimeout, Lease: lease}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Dispatch.Enabled, Timezone: cfg.Dispatch.Timezone}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDuration("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDuration("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDuration("notifier.dedup_window", n.DedupWindow, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	if n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}
	return notifier.Config{
		Driver:        strings.ToLower(strings.TrimSpace(n.Driver)),
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   window,
		BaseURL:       n.BaseURL,
		SMTP: notifier.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
			FromName: n.SMTP.FromName,
			StartTLS: n.SMTP.StartTLS,
		},
	}, nil
}

// newTransport picks the delivery transport for the notifier driver.
func newTransport(nc notifier.Config, log logx.Logger) (notifier.Transport, error) {
	switch nc.Driver {
	case "smtp":
		return notifier.NewSMTPTransport(nc.SMTP), nil
	case "log":
		return notifier.NewLogTransport(log), nil
	default:
		return nil, fmt.Errorf("unknown notifier.driver: %s", nc.Driver)
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	o := cfg.Ops
	return ops.Config{
		Enabled:     o.Enabled,
		Addr:        o.Addr,
		Pprof:       o.Pprof,
		Token:       o.Token,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// validateMapped runs every mapping so a reload that parses but cannot be
// applied is rejected before commit.
func validateMapped(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	if _, err := newTransport(nc, logx.Nop()); err != nil {
		return err
	}
	return nil
}
