package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const maxSubjectLen = 255

// Validate checks the type/field invariants of m. now is used to reject a
// scheduled_at in the past while the message is still SCHEDULED.
func (m Message) Validate(now time.Time) error {
	if !m.Type.Valid() {
		return ErrInvalidType
	}
	rcpts := SplitRecipients(strings.Join(m.Recipients, ","))
	if len(rcpts) == 0 {
		return ErrNoRecipients
	}
	for _, r := range rcpts {
		if err := ValidateAddress(r); err != nil {
			return err
		}
	}
	subj := strings.TrimSpace(m.Subject)
	if subj == "" {
		return ErrSubjectRequired
	}
	if len(m.Subject) > maxSubjectLen {
		return ErrSubjectTooLong
	}

	switch m.Type {
	case FinalWord:
		if m.Delay == nil {
			return ErrDelayRequired
		}
		if *m.Delay < 0 {
			return ErrNegativeDelay
		}
		if m.ScheduledAt != nil {
			return ErrScheduledAtNotAllowed
		}
	case TimeCapsule:
		if m.Delay != nil {
			return ErrDelayNotAllowed
		}
		if m.ScheduledAt == nil {
			return ErrScheduledAtRequired
		}
		if m.ScheduledAt.Before(now) && (m.Status == "" || m.Status == StatusScheduled) {
			return ErrScheduledAtInPast
		}
	}
	return nil
}

func ValidateInterval(days int) error {
	if days < 0 {
		return ErrNegativeInterval
	}
	return nil
}

// ValidateAddress accepts a bare addr-spec such as kin@example.com. Display
// names and anything that could smuggle an SMTP line are rejected.
func ValidateAddress(addr string) error {
	if strings.ContainsAny(addr, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, addr)
	}
	a, err := mail.ParseAddress(addr)
	if err != nil || a.Name != "" || a.Address != addr {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, addr)
	}
	return nil
}
