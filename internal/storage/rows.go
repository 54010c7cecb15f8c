package storage

import (
	"database/sql"

	"finalword/internal/model"
)

var (
	userColumns    = []string{"id", "email", "first_name", "last_name", "interval_days", "last_checkin", "created_at", "updated_at"}
	messageColumns = []string{"id", "user_id", "type", "status", "recipients", "subject", "body", "delay_days", "scheduled_at", "created_at", "updated_at"}
	jobColumns     = []string{"id", "message_id", "due_at", "is_completed", "lease_until", "created_at", "updated_at"}
)

type userRow struct {
	ID           int64         `db:"id"`
	Email        string        `db:"email"`
	FirstName    string        `db:"first_name"`
	LastName     string        `db:"last_name"`
	IntervalDays int           `db:"interval_days"`
	LastCheckin  sql.NullInt64 `db:"last_checkin"`
	CreatedAt    int64         `db:"created_at"`
	UpdatedAt    int64         `db:"updated_at"`
}

func (r userRow) model() model.User {
	return model.User{
		ID:          r.ID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Interval:    r.IntervalDays,
		LastCheckin: ptrMS(r.LastCheckin),
		CreatedAt:   fromMS(r.CreatedAt),
		UpdatedAt:   fromMS(r.UpdatedAt),
	}
}

type messageRow struct {
	ID          int64         `db:"id"`
	UserID      int64         `db:"user_id"`
	Type        string        `db:"type"`
	Status      string        `db:"status"`
	Recipients  string        `db:"recipients"`
	Subject     string        `db:"subject"`
	Body        string        `db:"body"`
	DelayDays   sql.NullInt64 `db:"delay_days"`
	ScheduledAt sql.NullInt64 `db:"scheduled_at"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r messageRow) model() model.Message {
	return model.Message{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        model.MessageType(r.Type),
		Status:      model.Status(r.Status),
		Recipients:  model.SplitRecipients(r.Recipients),
		Subject:     r.Subject,
		Text:        r.Body,
		Delay:       ptrInt(r.DelayDays),
		ScheduledAt: ptrMS(r.ScheduledAt),
		CreatedAt:   fromMS(r.CreatedAt),
		UpdatedAt:   fromMS(r.UpdatedAt),
	}
}

type jobRow struct {
	ID          int64         `db:"id"`
	MessageID   int64         `db:"message_id"`
	DueAt       int64         `db:"due_at"`
	IsCompleted bool          `db:"is_completed"`
	LeaseUntil  sql.NullInt64 `db:"lease_until"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r jobRow) model() model.Job {
	return model.Job{
		ID:          r.ID,
		MessageID:   r.MessageID,
		DueAt:       fromMS(r.DueAt),
		IsCompleted: r.IsCompleted,
		LeaseUntil:  ptrMS(r.LeaseUntil),
		CreatedAt:   fromMS(r.CreatedAt),
		UpdatedAt:   fromMS(r.UpdatedAt),
	}
}

// dueRow is the flat join of jobs, messages and users read by the dispatch loop.
type dueRow struct {
	JobID       int64         `db:"j_id"`
	DueAt       int64         `db:"j_due_at"`
	IsCompleted bool          `db:"j_is_completed"`
	LeaseUntil  sql.NullInt64 `db:"j_lease_until"`
	JobCreated  int64         `db:"j_created_at"`
	JobUpdated  int64         `db:"j_updated_at"`

	MessageID   int64         `db:"m_id"`
	Type        string        `db:"m_type"`
	Status      string        `db:"m_status"`
	Recipients  string        `db:"m_recipients"`
	Subject     string        `db:"m_subject"`
	Body        string        `db:"m_body"`
	DelayDays   sql.NullInt64 `db:"m_delay_days"`
	ScheduledAt sql.NullInt64 `db:"m_scheduled_at"`
	MsgCreated  int64         `db:"m_created_at"`
	MsgUpdated  int64         `db:"m_updated_at"`

	UserID    int64  `db:"u_id"`
	Email     string `db:"u_email"`
	FirstName string `db:"u_first_name"`
	LastName  string `db:"u_last_name"`
}

var dueColumns = []string{
	"j.id AS j_id", "j.due_at AS j_due_at", "j.is_completed AS j_is_completed",
	"j.lease_until AS j_lease_until", "j.created_at AS j_created_at", "j.updated_at AS j_updated_at",
	"m.id AS m_id", "m.type AS m_type", "m.status AS m_status", "m.recipients AS m_recipients",
	"m.subject AS m_subject", "m.body AS m_body", "m.delay_days AS m_delay_days",
	"m.scheduled_at AS m_scheduled_at", "m.created_at AS m_created_at", "m.updated_at AS m_updated_at",
	"u.id AS u_id", "u.email AS u_email", "u.first_name AS u_first_name", "u.last_name AS u_last_name",
}

func (r dueRow) model() model.DueJob {
	return model.DueJob{
		Job: jobRow{
			ID: r.JobID, MessageID: r.MessageID, DueAt: r.DueAt, IsCompleted: r.IsCompleted,
			LeaseUntil: r.LeaseUntil, CreatedAt: r.JobCreated, UpdatedAt: r.JobUpdated,
		}.model(),
		Message: messageRow{
			ID: r.MessageID, UserID: r.UserID, Type: r.Type, Status: r.Status, Recipients: r.Recipients,
			Subject: r.Subject, Body: r.Body, DelayDays: r.DelayDays, ScheduledAt: r.ScheduledAt,
			CreatedAt: r.MsgCreated, UpdatedAt: r.MsgUpdated,
		}.model(),
		User: model.User{ID: r.UserID, Email: r.Email, FirstName: r.FirstName, LastName: r.LastName},
	}
}

type activityRow struct {
	ID          int64  `db:"id"`
	UserID      int64  `db:"user_id"`
	Type        string `db:"type"`
	OccurredAt  int64  `db:"occurred_at"`
	Description string `db:"description"`
}

var activityColumns = []string{"id", "user_id", "type", "occurred_at", "description"}

func (r activityRow) model() model.ActivityLog {
	return model.ActivityLog{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        model.ActivityType(r.Type),
		Timestamp:   fromMS(r.OccurredAt),
		Description: r.Description,
	}
}
