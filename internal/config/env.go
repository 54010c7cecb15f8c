package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// secretsEnv lists the values that may be supplied through the environment
// instead of the config file.
type secretsEnv struct {
	StorageDSN    string `env:"FINALWORD_STORAGE_DSN"`
	SMTPPassword  string `env:"FINALWORD_SMTP_PASSWORD"`
	TelegramToken string `env:"FINALWORD_TELEGRAM_TOKEN"`
	OpsToken      string `env:"FINALWORD_OPS_TOKEN"`
}

// ApplyEnv overlays set environment variables onto cfg.
func ApplyEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var env secretsEnv
	if err := envconfig.ProcessWith(ctx, &env, l); err != nil {
		return fmt.Errorf("env overlay: %w", err)
	}
	if env.StorageDSN != "" {
		cfg.Storage.DSN = env.StorageDSN
	}
	if env.SMTPPassword != "" {
		cfg.Notifier.SMTP.Password = env.SMTPPassword
	}
	if env.TelegramToken != "" {
		cfg.Telegram.Token = env.TelegramToken
	}
	if env.OpsToken != "" {
		cfg.Ops.Token = env.OpsToken
	}
	return nil
}
