package notifier

import (
	"context"
	"strings"

	logx "finalword/pkg/logx"
)

// LogTransport logs mail instead of sending it. Driver "log".
type LogTransport struct {
	log logx.Logger
}

func NewLogTransport(log logx.Logger) *LogTransport {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogTransport{log: log.With(logx.String("transport", "log"))}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Deliver(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info("mail",
		logx.String("from", m.From),
		logx.String("to", strings.Join(m.To, ",")),
		logx.String("subject", m.Subject),
		logx.Int("text_len", len(m.Text)),
	)
	return nil
}
