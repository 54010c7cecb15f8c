package storage

import (
	"context"
	"errors"
	"time"

	"finalword/internal/model"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
	// ErrInvalidOrdering is returned by listings for an unknown order field.
	ErrInvalidOrdering = errors.New("unsupported ordering")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Reader holds the point lookups available both inside and outside a transaction.
type Reader interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetMessage(ctx context.Context, id int64) (model.Message, error)
	GetJobByMessage(ctx context.Context, messageID int64) (model.Job, error)
}

// Tx is a unit of work. Every write of a controller operation goes through
// one Tx so the schedule change and its activity row commit together.
type Tx interface {
	Reader

	InsertUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u model.User) error
	SetLastCheckin(ctx context.Context, userID int64, at time.Time) error

	InsertMessage(ctx context.Context, m *model.Message) error
	// UpdateMessage writes content and schedule fields. Type and status are left alone.
	UpdateMessage(ctx context.Context, m model.Message) error
	SetMessageStatus(ctx context.Context, id int64, status model.Status, at time.Time) error
	DeleteMessage(ctx context.Context, id int64) error

	InsertJob(ctx context.Context, j *model.Job) error
	// SetJobDueAt is a targeted due_at write for a single message's job.
	SetJobDueAt(ctx context.Context, messageID int64, dueAt, at time.Time) error
	// ResetFinalWordJobs sets due_at = now + delay for every incomplete
	// FINAL_WORD job of the user in one statement.
	ResetFinalWordJobs(ctx context.Context, userID int64, now time.Time) (int64, error)
	// ShiftFinalWordJobs moves due_at by delta for every incomplete
	// FINAL_WORD job of the user in one statement.
	ShiftFinalWordJobs(ctx context.Context, userID int64, delta time.Duration, at time.Time) (int64, error)
	// RearmJob marks the job incomplete again with a fresh due_at.
	RearmJob(ctx context.Context, messageID int64, dueAt, at time.Time) error
	// CompleteJob flips is_completed false->true. It reports false when the
	// job was already complete.
	CompleteJob(ctx context.Context, jobID int64, at time.Time) (bool, error)

	AppendActivity(ctx context.Context, a *model.ActivityLog) error
}

// Cursor is a keyset position over (due_at, id).
type Cursor struct {
	DueAt time.Time
	ID    int64
}

func (c Cursor) IsZero() bool { return c.ID == 0 }

// MessageFilter selects messages for listing.
type MessageFilter struct {
	UserID  int64
	Type    model.MessageType // empty: all
	Search  string            // substring of recipients or subject
	OrderBy []string          // column names, "-" prefix for descending
	Limit   int
	Offset  int
}

// ActivityFilter selects activity rows for listing.
type ActivityFilter struct {
	UserID  int64
	OrderBy []string
	Limit   int
	Offset  int
}

// TypeCount is one row of the per-type/per-status message count.
type TypeCount struct {
	Type   model.MessageType `db:"type"`
	Status model.Status      `db:"status"`
	Count  int               `db:"n"`
}

// Store is the persistence API used by the controller, the dispatch loop and queries.
type Store interface {
	Reader

	InTx(ctx context.Context, fn func(Tx) error) error

	// DueJobs returns up to limit jobs with due_at <= now that are
	// incomplete, unleased and whose message is SCHEDULED, ordered by
	// (due_at, id) strictly after the cursor.
	DueJobs(ctx context.Context, now time.Time, after Cursor, limit int) ([]model.DueJob, error)
	// ClaimJob leases an incomplete job until the given time. It reports
	// false when another worker holds a live lease, the job is complete,
	// its due_at has moved past now, or its message left SCHEDULED.
	ClaimJob(ctx context.Context, jobID int64, now, until time.Time) (bool, error)
	ReleaseJob(ctx context.Context, jobID int64) error
	CountPendingJobs(ctx context.Context) (int64, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	CountMessages(ctx context.Context, userID int64) ([]TypeCount, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]model.Message, error)
	ListActivity(ctx context.Context, f ActivityFilter) ([]model.ActivityLog, error)

	Ping(ctx context.Context) error
	Close() error
}
