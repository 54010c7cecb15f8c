package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatAlert(t *testing.T) {
	t.Parallel()

	got := formatAlert([]byte(`{"level":"error","time":"x","message":"send failed","message_id":"42","err":"boom"}` + "\n"))
	want := "[ERROR] send failed\n- err=boom\n- message_id=42"
	if got != want {
		t.Fatalf("formatAlert()=%q want %q", got, want)
	}

	if got := formatAlert([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw fallback=%q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 12, "abcdefghi..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q,%d)=%q want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) SendText(_ context.Context, chatID int64, _ int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestServiceAlertsRespectMinLevel(t *testing.T) {
	sender := &recordingSender{}
	svc, log := New(Config{
		Level:  "debug",
		Alerts: AlertConfig{Enabled: true, ChatID: 1, MinLevel: "error", RatePerSec: 100},
	}, sender)
	defer svc.Close()

	log.Warn("ignored")
	log.Error("delivery failed", String("message_id", "m1"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := sender.count(); n != 1 {
		t.Fatalf("alerts sent=%d want 1", n)
	}
	sender.mu.Lock()
	text := sender.texts[0]
	sender.mu.Unlock()
	if !strings.HasPrefix(text, "[ERROR] delivery failed") || !strings.Contains(text, "message_id=m1") {
		t.Fatalf("unexpected alert text %q", text)
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("component", "dispatch"))
	log.Debug("hidden")
	log.Info("processed jobs", Int("count", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %s", out)
	}
	for _, want := range []string{`"component":"dispatch"`, `"count":3`, `"message":"processed jobs"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %s missing %s", out, want)
		}
	}
}
