package notifier

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"finalword/internal/model"
	logx "finalword/pkg/logx"
)

type scriptedTransport struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil once exhausted
	calls int
	last  Mail
}

func (t *scriptedTransport) Name() string { return "scripted" }

func (t *scriptedTransport) Deliver(_ context.Context, m Mail) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.last = m
	if len(t.errs) == 0 {
		return nil
	}
	err := t.errs[0]
	t.errs = t.errs[1:]
	return err
}

type memDedup struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (d *memDedup) PutDedup(_ context.Context, key string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = map[string]time.Time{}
	}
	d.m[key] = until
	return nil
}

func (d *memDedup) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.m[key]
	return u, ok, nil
}

func testConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond, DedupWindow: time.Hour}
}

func envelope() Envelope {
	return Envelope{Key: "m1@100", MessageID: 1, Type: model.FinalWord, Recipients: []string{"a@x.io", " "}, Subject: "bye", Text: "hello", SenderName: "Ann"}
}

func TestSendOutcomes(t *testing.T) {
	t.Parallel()

	reject := Permanent(&textproto.Error{Code: 550, Msg: "no such user"})
	transient := errors.New("connection reset")

	cases := []struct {
		name      string
		errs      []error
		wantOK    bool
		wantErr   bool
		wantCalls int
	}{
		{"first try", nil, true, false, 1},
		{"retry then ok", []error{transient}, true, false, 2},
		{"permanent is not retried", []error{reject}, false, false, 1},
		{"transient exhausted", []error{transient, transient, transient}, false, true, 3},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := &scriptedTransport{errs: tc.errs}
			svc := New(testConfig(), tr, logx.Nop(), nil, nil)
			ok, err := svc.Send(context.Background(), envelope())
			if ok != tc.wantOK || (err != nil) != tc.wantErr {
				t.Fatalf("Send()=(%v,%v) want ok=%v err=%v", ok, err, tc.wantOK, tc.wantErr)
			}
			if tr.calls != tc.wantCalls {
				t.Fatalf("calls=%d want %d", tr.calls, tc.wantCalls)
			}
			if h := svc.Snapshot(); len(h) != 1 {
				t.Fatalf("history=%v", h)
			}
		})
	}
}

func TestSendDedupSkipsSecondDelivery(t *testing.T) {
	t.Parallel()

	store := &memDedup{}
	tr := &scriptedTransport{}
	svc := New(testConfig(), tr, logx.Nop(), nil, store)

	for i := 0; i < 2; i++ {
		ok, err := svc.Send(context.Background(), envelope())
		if !ok || err != nil {
			t.Fatalf("send %d: (%v,%v)", i, ok, err)
		}
	}
	if tr.calls != 1 {
		t.Fatalf("transport calls=%d want 1", tr.calls)
	}

	// A fresh service (process restart) still sees the persisted key.
	tr2 := &scriptedTransport{}
	svc2 := New(testConfig(), tr2, logx.Nop(), nil, store)
	if ok, err := svc2.Send(context.Background(), envelope()); !ok || err != nil {
		t.Fatalf("after restart: (%v,%v)", ok, err)
	}
	if tr2.calls != 0 {
		t.Fatalf("restarted transport calls=%d want 0", tr2.calls)
	}
}

func TestSendWithoutRecipientsIsRejected(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{}
	svc := New(testConfig(), tr, logx.Nop(), nil, nil)
	env := envelope()
	env.Recipients = []string{" ", ""}
	ok, err := svc.Send(context.Background(), env)
	if ok || err != nil || tr.calls != 0 {
		t.Fatalf("Send()=(%v,%v) calls=%d", ok, err, tr.calls)
	}
}

func TestSendHonorsCancellation(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	cfg := testConfig()
	cfg.RetryBase = time.Hour
	cfg.RetryMaxDelay = time.Hour
	svc := New(cfg, tr, logx.Nop(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := svc.Send(ctx, envelope())
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send()=(%v,%v) want deadline exceeded", ok, err)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt, errors.New("x"))
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d delay %s out of range", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1, RetryAfter(errors.New("x"), 5*time.Second)); d != time.Second {
		t.Fatalf("retry-after should be capped, got %s", d)
	}
	if d := retryDelay(cfg, 1, RetryAfter(errors.New("x"), 300*time.Millisecond)); d != 300*time.Millisecond {
		t.Fatalf("retry-after hint ignored, got %s", d)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "https://finalword.example", SMTP: SMTPConfig{From: "noreply@finalword.example"}}
	m, err := Render(Envelope{Type: model.TimeCapsule, Recipients: []string{"a@x.io"}, Subject: "S", Text: "<b>hi</b>", SenderName: "Ann"}, cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if m.From != "Final Word Service <noreply@finalword.example>" {
		t.Fatalf("From=%q", m.From)
	}
	if !strings.Contains(m.Text, "<b>hi</b>") || !strings.Contains(m.Text, "Ann scheduled this time capsule") {
		t.Fatalf("text part=%q", m.Text)
	}
	if !strings.Contains(m.HTML, "&lt;b&gt;hi&lt;/b&gt;") || !strings.Contains(m.HTML, `href="https://finalword.example"`) {
		t.Fatalf("html part not escaped: %q", m.HTML)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if !IsPermanent(classify(&textproto.Error{Code: 550})) {
		t.Fatalf("550 should be permanent")
	}
	if IsPermanent(classify(&textproto.Error{Code: 451})) {
		t.Fatalf("451 should be transient")
	}
	if IsPermanent(classify(errors.New("eof"))) {
		t.Fatalf("plain errors are transient")
	}
}

func TestBuildMIME(t *testing.T) {
	t.Parallel()

	b, err := buildMIME(Mail{From: "A <a@x.io>", To: []string{"b@x.io", "c@x.io"}, Subject: "Grüße", Text: "plain", HTML: "<p>html</p>"},
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	s := string(b)
	for _, want := range []string{
		"To: b@x.io, c@x.io\r\n",
		"Subject: =?utf-8?q?Gr=C3=BC=C3=9Fe?=\r\n",
		"multipart/alternative; boundary=",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("mime missing %q:\n%s", want, s)
		}
	}
}

func TestSMTPRejectsBadRecipientWithoutDialing(t *testing.T) {
	t.Parallel()

	tr := NewSMTPTransport(SMTPConfig{Host: "mail.invalid", From: "noreply@finalword.example"})
	dialed := false
	tr.dial = func(context.Context, string, string) (net.Conn, error) {
		dialed = true
		return nil, errors.New("dial disabled")
	}

	for _, rcpt := range []string{"not an address", "a@x.com\r\nBcc: evil@x.com"} {
		err := tr.Deliver(context.Background(), Mail{From: "noreply@finalword.example", To: []string{"ok@x.io", rcpt}, Subject: "s", Text: "t"})
		if !IsPermanent(err) {
			t.Fatalf("Deliver(%q)=%v want permanent", rcpt, err)
		}
		if !errors.Is(err, model.ErrInvalidRecipient) {
			t.Fatalf("Deliver(%q)=%v want ErrInvalidRecipient", rcpt, err)
		}
	}
	if dialed {
		t.Fatalf("transport dialed for an invalid recipient")
	}

	// Through the service the rejection is a FAILED outcome, not a fault.
	svc := New(testConfig(), tr, logx.Nop(), nil, nil)
	env := envelope()
	env.Recipients = []string{"not an address"}
	ok, err := svc.Send(context.Background(), env)
	if ok || err != nil {
		t.Fatalf("Send()=(%v,%v) want (false,nil)", ok, err)
	}
}
