package model

import (
	"strings"
	"time"
)

type MessageType string

const (
	FinalWord   MessageType = "FINAL_WORD"
	TimeCapsule MessageType = "TIME_CAPSULE"
)

func (t MessageType) Valid() bool { return t == FinalWord || t == TimeCapsule }

// Label is the human form used in activity descriptions ("Final word").
func (t MessageType) Label() string {
	switch t {
	case FinalWord:
		return "Final word"
	case TimeCapsule:
		return "Time capsule"
	default:
		return string(t)
	}
}

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

type ActivityType string

const (
	ActivityCheckedIn        ActivityType = "CHECKED_IN"
	ActivityMessageCreated   ActivityType = "MESSAGE_CREATED"
	ActivityMessageDelivered ActivityType = "MESSAGE_DELIVERED"
	ActivityMessageDeleted   ActivityType = "MESSAGE_DELETED"
)

// Day is the unit for delay and interval.
const Day = 24 * time.Hour

type User struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	Interval    int // days
	LastCheckin *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName is "First Last", falling back to the email.
func (u User) DisplayName() string {
	n := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if n == "" {
		return u.Email
	}
	return n
}

type Message struct {
	ID          int64
	UserID      int64
	Type        MessageType
	Status      Status
	Recipients  []string
	Subject     string
	Text        string
	Delay       *int       // FINAL_WORD only, days
	ScheduledAt *time.Time // TIME_CAPSULE only
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Job struct {
	ID          int64
	MessageID   int64
	DueAt       time.Time
	IsCompleted bool
	LeaseUntil  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ActivityLog struct {
	ID          int64
	UserID      int64
	Type        ActivityType
	Timestamp   time.Time
	Description string
}

// DueJob is a job joined with what the dispatch loop needs to deliver it.
type DueJob struct {
	Job     Job
	Message Message
	User    User
}

// SplitRecipients parses the persisted comma-separated form.
func SplitRecipients(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func JoinRecipients(rs []string) string {
	return strings.Join(SplitRecipients(strings.Join(rs, ",")), ",")
}

func IntPtr(v int) *int { return &v }

func TimePtr(t time.Time) *time.Time { return &t }
