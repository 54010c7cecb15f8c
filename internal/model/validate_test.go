package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(10 * Day)
	past := now.Add(-time.Hour)

	base := func(typ MessageType) Message {
		return Message{Type: typ, Recipients: []string{"a@example.com"}, Subject: "hi", Text: "body"}
	}
	with := func(m Message, f func(*Message)) Message { f(&m); return m }

	cases := []struct {
		name string
		msg  Message
		want error
	}{
		{"final word ok", with(base(FinalWord), func(m *Message) { m.Delay = IntPtr(30) }), nil},
		{"final word zero delay ok", with(base(FinalWord), func(m *Message) { m.Delay = IntPtr(0) }), nil},
		{"final word missing delay", base(FinalWord), ErrDelayRequired},
		{"final word negative delay", with(base(FinalWord), func(m *Message) { m.Delay = IntPtr(-1) }), ErrNegativeDelay},
		{"final word with scheduled_at", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.ScheduledAt = &future
		}), ErrScheduledAtNotAllowed},
		{"time capsule ok", with(base(TimeCapsule), func(m *Message) { m.ScheduledAt = &future }), nil},
		{"time capsule missing scheduled_at", base(TimeCapsule), ErrScheduledAtRequired},
		{"time capsule with delay", with(base(TimeCapsule), func(m *Message) {
			m.ScheduledAt = &future
			m.Delay = IntPtr(2)
		}), ErrDelayNotAllowed},
		{"time capsule in past", with(base(TimeCapsule), func(m *Message) { m.ScheduledAt = &past }), ErrScheduledAtInPast},
		{"delivered time capsule in past", with(base(TimeCapsule), func(m *Message) {
			m.ScheduledAt = &past
			m.Status = StatusDelivered
		}), nil},
		{"bad type", with(base("LETTER"), func(m *Message) { m.Delay = IntPtr(1) }), ErrInvalidType},
		{"no recipients", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.Recipients = []string{" ", ""}
		}), ErrNoRecipients},
		{"recipient not an address", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.Recipients = []string{"a@example.com", "not an address"}
		}), ErrInvalidRecipient},
		{"recipient with header injection", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.Recipients = []string{"a@x.com\r\nBcc: evil@x.com"}
		}), ErrInvalidRecipient},
		{"recipient with display name", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.Recipients = []string{"Kin <kin@example.com>"}
		}), ErrInvalidRecipient},
		{"blank subject", with(base(FinalWord), func(m *Message) {
			m.Delay = IntPtr(1)
			m.Subject = "  "
		}), ErrSubjectRequired},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.msg.Validate(now)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate()=%v want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate()=%v want %v", err, tc.want)
			}
			if CodeOf(err) != CodeInvalidArgument {
				t.Fatalf("CodeOf=%s want %s", CodeOf(err), CodeInvalidArgument)
			}
		})
	}
}

func TestCodeOfWrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("update message 7: %w", ErrNotEditable)
	if !errors.Is(err, ErrNotEditable) {
		t.Fatalf("errors.Is failed through wrap")
	}
	if got := CodeOf(err); got != CodeFailedPrecondition {
		t.Fatalf("CodeOf=%s", got)
	}
	if got := CodeOf(errors.New("x")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain)=%s", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil)=%q", got)
	}
}

func TestSplitRecipients(t *testing.T) {
	t.Parallel()

	got := SplitRecipients(" a@x.io, ,b@x.io,")
	if len(got) != 2 || got[0] != "a@x.io" || got[1] != "b@x.io" {
		t.Fatalf("SplitRecipients=%v", got)
	}
	if s := JoinRecipients([]string{"a@x.io ", " b@x.io,c@x.io"}); s != "a@x.io,b@x.io,c@x.io" {
		t.Fatalf("JoinRecipients=%q", s)
	}
}

func TestTypeLabel(t *testing.T) {
	t.Parallel()

	if FinalWord.Label() != "Final word" || TimeCapsule.Label() != "Time capsule" {
		t.Fatalf("labels: %q %q", FinalWord.Label(), TimeCapsule.Label())
	}
}
