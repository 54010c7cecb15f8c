package config

import (
	"sort"
	"strings"

	logx "finalword/pkg/logx"
)

// SummarizeConfigChange returns (1) the sorted list of changed sections,
// (2) safe structured attrs for logging (never secrets, only whether they
// are set) and (3) the changed sections that only take effect on restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	restart := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Logging, newCfg.Logging
	if o.Level != n.Level || o.Console != n.Console || o.File != n.File || o.Telegram != n.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.file_enabled", n.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Telegram.Enabled),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID || ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Bool("telegram.chat_set", nt.ChatID != 0),
		)
		if ot.Token != nt.Token {
			restart = append(restart, "telegram")
		}
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		d := newCfg.Dispatch
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Bool("dispatch.enabled", d.Enabled),
			logx.String("dispatch.schedule", d.Schedule),
			logx.Int("dispatch.batch_size", d.BatchSize),
			logx.String("dispatch.job_timeout", d.JobTimeout),
			logx.String("dispatch.lease", d.Lease),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		nn := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.driver", nn.Driver),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.Int("notifier.retry_max", nn.RetryMax),
			logx.Bool("notifier.smtp_password_set", nn.SMTP.Password != ""),
		)
		if oldCfg.Notifier.Driver != nn.Driver || oldCfg.Notifier.SMTP != nn.SMTP {
			restart = append(restart, "notifier")
		}
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		restart = append(restart, "events")
		attrs = append(attrs, logx.Bool("events.nats_set", newCfg.Events.NATSURL != ""))
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
