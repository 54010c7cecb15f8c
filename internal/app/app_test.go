package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finalword/internal/config"
	"finalword/internal/model"
	"finalword/internal/schedule"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", dir)
	p := filepath.Join(dir, "finalword.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

const testConfig = `
logging:
  level: ERROR
storage:
  driver: sqlite
  path: $DIR/fw.db
dispatch:
  enabled: true
  schedule: "@every 1m"
notifier:
  driver: log
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppDispatchesDueMessage(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	u, err := a.Controller().CreateUser(ctx, schedule.UserInput{Email: "ann@example.com", Interval: 0})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	m, _, err := a.Controller().CreateMessage(ctx, schedule.MessageInput{
		UserID:     u.ID,
		Type:       model.FinalWord,
		Recipients: []string{"kid@example.com"},
		Subject:    "Hello",
		Text:       "bye",
		Delay:      model.IntPtr(0),
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	rep, err := a.RunDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rep.Delivered != 1 {
		t.Fatalf("report = %+v", rep)
	}
	got, err := a.Query().Message(ctx, u.ID, m.ID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got.Status != model.StatusDelivered {
		t.Fatalf("status = %s", got.Status)
	}

	st, ok := a.status().(map[string]any)
	if !ok || st["last_dispatch"] == nil {
		t.Fatalf("status missing last dispatch: %#v", a.status())
	}
}

func TestApplyReschedulesDispatch(t *testing.T) {
	a := newTestApp(t)
	prev := a.Config()
	next := *prev
	next.Dispatch.Schedule = "*/5 * * * *"
	next.Dispatch.Timezone = "UTC"

	a.apply(context.Background(), prev, &next)

	snap := a.sched.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "*/5 * * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if snap.Timezone != "UTC" {
		t.Fatalf("tz = %s", snap.Timezone)
	}
	if a.appliedSchedule != "*/5 * * * *" {
		t.Fatalf("applied = %q", a.appliedSchedule)
	}

	// A rejected schedule keeps the previous one.
	bad := next
	bad.Dispatch.Schedule = "every tuesday"
	a.apply(context.Background(), &next, &bad)
	if a.appliedSchedule != "*/5 * * * *" {
		t.Fatalf("bad schedule applied: %q", a.appliedSchedule)
	}
}

func TestStartStop(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatalf("second start should fail")
	}
	if !a.sched.Snapshot().Running {
		t.Fatalf("scheduler not running")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopCommand); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("done not closed after stop")
	}
}

func TestMapDispatchConfigRejectsShortLease(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.JobTimeout = "1m"
	cfg.Dispatch.Lease = "30s"
	if _, err := mapDispatchConfig(cfg); err == nil {
		t.Fatalf("expected lease error")
	}
	cfg.Dispatch.Lease = "3m"
	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if dc.Lease != 3*time.Minute || dc.JobTimeout != time.Minute {
		t.Fatalf("dispatch = %+v", dc)
	}
}

func TestValidateMapped(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.Notifier.Driver = "pigeon" }, "notifier.driver"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }, "storage.dsn"},
		{"bad retry base", func(c *config.Config) { c.Notifier.RetryBase = "soon" }, "notifier.retry_base"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := validateMapped(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestMapLogConfigRoutesAlertsToTelegramChat(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.ChatID = -100123
	cfg.Telegram.ThreadID = 7
	cfg.Logging.Telegram.Enabled = true

	lc := mapLogConfig(cfg)
	if !lc.Alerts.Enabled || lc.Alerts.ChatID != -100123 || lc.Alerts.ThreadID != 7 {
		t.Fatalf("alerts = %+v", lc.Alerts)
	}
	if lc.Alerts.MinLevel != "WARN" {
		t.Fatalf("min level = %q", lc.Alerts.MinLevel)
	}
}
