package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	logx "finalword/pkg/logx"
)

// cronLogger adapts logx to cron.Logger. Cron's own chatter (schedule/wake)
// goes to TRACE; skips and recovered panics are promoted.
type cronLogger struct{ log logx.Logger }

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	switch msg {
	case "skip":
		l.log.Debug("schedule trigger skipped, previous run still in flight", fields...)
	default:
		l.log.Trace("cron "+msg, fields...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron "+msg, fields...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
