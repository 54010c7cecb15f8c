package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finalword/internal/app"
	"finalword/internal/model"
)

func newBackend(t *testing.T) (*app.App, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := "logging:\n  level: ERROR\nstorage:\n  driver: sqlite\n  path: " + filepath.Join(dir, "cli.db") + "\nnotifier:\n  driver: log\n"
	p := filepath.Join(dir, "finalword.yaml")
	if err := os.WriteFile(p, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := app.New(context.Background(), p)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, dir
}

func runJSON(t *testing.T, b backend, v any, args ...string) {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), b, args, &out); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(out.Bytes(), v); err != nil {
		t.Fatalf("%v: decode %q: %v", args, out.String(), err)
	}
}

func TestMessageLifecycleThroughCLI(t *testing.T) {
	a, dir := newBackend(t)

	var u model.User
	runJSON(t, a, &u, "user", "add", "-email", "Ann@Example.com", "-first", "Ann", "-interval", "0")
	if u.ID == 0 || u.Email != "ann@example.com" {
		t.Fatalf("user = %+v", u)
	}

	file := filepath.Join(dir, "msg.yaml")
	body := "type: final_word\nrecipients: [kid@example.com, spouse@example.com]\nsubject: Keys\ntext: under the mat\ndelay: 0\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	var created struct {
		Message model.Message `json:"message"`
		DueAt   time.Time     `json:"due_at"`
	}
	runJSON(t, a, &created, "message", "create", "-user", itoa(u.ID), "-f", file)
	if created.Message.ID == 0 || len(created.Message.Recipients) != 2 {
		t.Fatalf("created = %+v", created)
	}

	var rep struct {
		Delivered int `json:"delivered"`
	}
	runJSON(t, a, &rep, "dispatch")
	if rep.Delivered != 1 {
		t.Fatalf("delivered = %d", rep.Delivered)
	}

	var stats struct {
		Delivered map[string]int `json:"delivered"`
	}
	runJSON(t, a, &stats, "stats", "-user", itoa(u.ID))
	if stats.Delivered["FINAL_WORD"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	runJSON(t, a, nil, "message", "resend", "-id", itoa(created.Message.ID))
	var shown model.Message
	runJSON(t, a, &shown, "message", "show", "-user", itoa(u.ID), "-id", itoa(created.Message.ID))
	if shown.Status != model.StatusScheduled {
		t.Fatalf("status after resend = %s", shown.Status)
	}

	var rows []model.ActivityLog
	runJSON(t, a, &rows, "activity", "-user", itoa(u.ID), "-order", "timestamp,id")
	if len(rows) != 2 || rows[0].Type != model.ActivityMessageCreated || rows[1].Type != model.ActivityMessageDelivered {
		t.Fatalf("activity = %+v", rows)
	}
}

func TestCheckinAndIntervalCommands(t *testing.T) {
	a, _ := newBackend(t)
	var u model.User
	runJSON(t, a, &u, "user", "add", "-email", "bob@example.com", "-interval", "3")

	var updated model.User
	runJSON(t, a, &updated, "user", "interval", "-user", itoa(u.ID), "-days", "10")
	if updated.Interval != 10 {
		t.Fatalf("interval = %d", updated.Interval)
	}

	var res struct {
		Reset int64 `json:"reset"`
	}
	runJSON(t, a, &res, "checkin", "-user", itoa(u.ID), "-silent")
	if res.Reset != 0 {
		t.Fatalf("reset = %d", res.Reset)
	}
}

func TestRunErrors(t *testing.T) {
	a, dir := newBackend(t)
	ctx := context.Background()
	var out bytes.Buffer

	var ue usageError
	if err := run(ctx, a, []string{"frobnicate"}, &out); !errors.As(err, &ue) {
		t.Fatalf("unknown command err = %v", err)
	}
	if err := run(ctx, a, []string{"message", "delete"}, &out); !errors.As(err, &ue) {
		t.Fatalf("missing id err = %v", err)
	}
	if err := run(ctx, a, []string{"stats", "-user", "1", "extra"}, &out); !errors.As(err, &ue) {
		t.Fatalf("extra args err = %v", err)
	}

	err := run(ctx, a, []string{"message", "delete", "-id", "99"}, &out)
	if !errors.Is(err, model.ErrMessageNotFound) {
		t.Fatalf("delete missing = %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("subject: x\ncolour: red\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = run(ctx, a, []string{"message", "create", "-f", bad}, &out)
	if model.CodeOf(err) != model.CodeInvalidArgument {
		t.Fatalf("unknown field err = %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" -delay, ,subject,")
	if len(got) != 2 || got[0] != "-delay" || got[1] != "subject" {
		t.Fatalf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Fatalf("empty list should be nil")
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
