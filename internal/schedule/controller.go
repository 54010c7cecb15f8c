package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finalword/internal/eventbus"
	"finalword/internal/metrics"
	"finalword/internal/model"
	"finalword/internal/storage"
	logx "finalword/pkg/logx"
)

// Controller is the write path for users, messages and check-ins. Each
// operation runs in one storage transaction and performs its due_at
// recomputation and activity rows explicitly; nothing is triggered
// implicitly by another write, so no operation re-enters another.
type Controller struct {
	store storage.Store
	now   func() time.Time
	log   logx.Logger
	bus   eventbus.Bus
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }
func WithLogger(l logx.Logger) Option       { return func(c *Controller) { c.log = l } }
func WithBus(b eventbus.Bus) Option         { return func(c *Controller) { c.bus = b } }

func NewController(st storage.Store, opts ...Option) *Controller {
	c := &Controller{store: st, now: time.Now, log: logx.Nop(), bus: eventbus.Nop()}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.bus == nil {
		c.bus = eventbus.Nop()
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "controller"))
	return c
}

func (c *Controller) clock() time.Time { return c.now().UTC() }

// ---- users ----

type UserInput struct {
	Email     string
	FirstName string
	LastName  string
	Interval  int
}

func (c *Controller) CreateUser(ctx context.Context, in UserInput) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return model.User{}, model.ErrEmailRequired
	}
	if err := model.ValidateInterval(in.Interval); err != nil {
		return model.User{}, err
	}
	now := c.clock()
	u := model.User{
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Interval:  in.Interval,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.InsertUser(ctx, &u)
	}); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	c.log.Info("user created", logx.UserID(u.ID))
	return u, nil
}

// UserPatch carries the mutable user fields; nil means unchanged.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Interval  *int
}

// UpdateUser writes the patch. An interval change shifts every incomplete
// FINAL_WORD job of the user by the signed difference in one bulk write,
// without re-deriving from delay and without per-job activity rows.
func (c *Controller) UpdateUser(ctx context.Context, id int64, p UserPatch) (model.User, error) {
	if p.Interval != nil {
		if err := model.ValidateInterval(*p.Interval); err != nil {
			return model.User{}, err
		}
	}
	now := c.clock()

	var (
		after   model.User
		shifted int64
		delta   time.Duration
	)
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		before, err := tx.GetUser(ctx, id)
		if err != nil {
			return notFound(err, model.ErrUserNotFound)
		}
		after = before
		if p.FirstName != nil {
			after.FirstName = strings.TrimSpace(*p.FirstName)
		}
		if p.LastName != nil {
			after.LastName = strings.TrimSpace(*p.LastName)
		}
		if p.Interval != nil {
			after.Interval = *p.Interval
		}
		after.UpdatedAt = now
		if err := tx.UpdateUser(ctx, after); err != nil {
			return err
		}

		if before.Interval != after.Interval {
			delta = ShiftDelta(before.Interval, after.Interval)
			shifted, err = tx.ShiftFinalWordJobs(ctx, id, delta, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}

	if delta != 0 {
		metrics.AddScheduleWrites("interval", shifted)
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleSet, Time: now, Data: eventbus.ScheduleChange{
			Reason: "interval", UserID: id, Count: shifted,
		}})
		c.log.Info("interval changed", logx.UserID(id), logx.Int("interval", after.Interval),
			logx.Duration("shift", delta), logx.Int64("jobs", shifted))
	}
	return after, nil
}

func (c *Controller) SetInterval(ctx context.Context, userID int64, days int) (model.User, error) {
	return c.UpdateUser(ctx, userID, UserPatch{Interval: &days})
}

type CheckinOptions struct {
	// Silent resets schedules without writing a CheckedIn activity row.
	Silent bool
}

type CheckinResult struct {
	At    time.Time
	Reset int64 // jobs whose due_at was reset
}

// CheckIn records proof of life: every incomplete FINAL_WORD job of the
// user becomes due delay days from now in one bulk write, and a single
// CheckedIn row is written regardless of how many jobs were touched.
func (c *Controller) CheckIn(ctx context.Context, userID int64, opt CheckinOptions) (CheckinResult, error) {
	now := c.clock()
	res := CheckinResult{At: now}

	var logged *model.ActivityLog
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return notFound(err, model.ErrUserNotFound)
		}
		if err := tx.SetLastCheckin(ctx, userID, now); err != nil {
			return err
		}
		n, err := tx.ResetFinalWordJobs(ctx, userID, now)
		if err != nil {
			return err
		}
		res.Reset = n
		if opt.Silent {
			return nil
		}
		a := checkedInActivity(userID, now)
		if err := tx.AppendActivity(ctx, &a); err != nil {
			return err
		}
		logged = &a
		return nil
	})
	if err != nil {
		return CheckinResult{}, fmt.Errorf("check in user %d: %w", userID, err)
	}

	metrics.AddScheduleWrites("checkin", res.Reset)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleSet, Time: now, Data: eventbus.ScheduleChange{
		Reason: "checkin", UserID: userID, Count: res.Reset,
	}})
	if logged != nil {
		c.emit(*logged)
	}
	c.log.Info("checked in", logx.UserID(userID), logx.Int64("jobs", res.Reset), logx.Bool("silent", opt.Silent))
	return res, nil
}

// ---- messages ----

type MessageInput struct {
	UserID      int64
	Type        model.MessageType
	Recipients  []string
	Subject     string
	Text        string
	Delay       *int
	ScheduledAt *time.Time
}

// CreateMessage validates the message, then persists it with its job and
// one MessageCreated row in a single transaction.
func (c *Controller) CreateMessage(ctx context.Context, in MessageInput) (model.Message, model.Job, error) {
	now := c.clock()
	m := model.Message{
		UserID:      in.UserID,
		Type:        in.Type,
		Status:      model.StatusScheduled,
		Recipients:  model.SplitRecipients(strings.Join(in.Recipients, ",")),
		Subject:     strings.TrimSpace(in.Subject),
		Text:        in.Text,
		Delay:       in.Delay,
		ScheduledAt: utcPtr(in.ScheduledAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.Validate(now); err != nil {
		return model.Message{}, model.Job{}, err
	}

	var (
		job model.Job
		a   model.ActivityLog
	)
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		u, err := tx.GetUser(ctx, m.UserID)
		if err != nil {
			return notFound(err, model.ErrUserNotFound)
		}
		if err := tx.InsertMessage(ctx, &m); err != nil {
			return err
		}
		job = model.Job{MessageID: m.ID, DueAt: DueAt(m, u, now), CreatedAt: now, UpdatedAt: now}
		if err := tx.InsertJob(ctx, &job); err != nil {
			return err
		}
		a = createdActivity(m, now)
		return tx.AppendActivity(ctx, &a)
	})
	if err != nil {
		return model.Message{}, model.Job{}, fmt.Errorf("create message: %w", err)
	}

	metrics.AddScheduleWrites("create", 1)
	c.emit(a)
	c.log.Info("message scheduled", logx.MessageID(m.ID), logx.String("type", string(m.Type)),
		logx.Time("due_at", job.DueAt))
	return m, job, nil
}

// MessagePatch carries editable message fields; nil means unchanged. Type
// may be supplied but must equal the stored type.
type MessagePatch struct {
	Type        *model.MessageType
	Recipients  *[]string
	Subject     *string
	Text        *string
	Delay       *int
	ScheduledAt *time.Time
}

// UpdateMessage applies p against the persisted row loaded in the same
// transaction. due_at is rewritten only when the field driving it changed
// (delay for FINAL_WORD, scheduled_at for TIME_CAPSULE), through a targeted
// job write that emits no activity row.
func (c *Controller) UpdateMessage(ctx context.Context, id int64, p MessagePatch) (model.Message, error) {
	now := c.clock()

	var (
		after   model.Message
		changed bool
		due     time.Time
	)
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		before, err := tx.GetMessage(ctx, id)
		if err != nil {
			return notFound(err, model.ErrMessageNotFound)
		}
		after = applyPatch(before, p)
		if after.Type != before.Type {
			return model.ErrTypeImmutable
		}

		changed = ScheduleChanged(before, after)
		if changed && before.Status != model.StatusScheduled {
			return model.ErrNotEditable
		}
		// A scheduled_at already in the past is only rejected when it is being set.
		checkAt := time.Time{}
		if changed {
			checkAt = now
		}
		if err := after.Validate(checkAt); err != nil {
			return err
		}

		after.UpdatedAt = now
		if err := tx.UpdateMessage(ctx, after); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		u, err := tx.GetUser(ctx, after.UserID)
		if err != nil {
			return notFound(err, model.ErrUserNotFound)
		}
		due = DueAt(after, u, now)
		return tx.SetJobDueAt(ctx, id, due, now)
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("update message %d: %w", id, err)
	}

	if changed {
		metrics.AddScheduleWrites("edit", 1)
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleSet, Time: now, Data: eventbus.ScheduleChange{
			Reason: "edit", UserID: after.UserID, MessageID: id, DueAt: due, Count: 1,
		}})
		c.log.Info("message rescheduled", logx.MessageID(id), logx.Time("due_at", due))
	}
	return after, nil
}

// DeleteMessage removes the message with its job and writes one MessageDeleted row.
func (c *Controller) DeleteMessage(ctx context.Context, id int64) error {
	now := c.clock()
	var a model.ActivityLog
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetMessage(ctx, id)
		if err != nil {
			return notFound(err, model.ErrMessageNotFound)
		}
		if err := tx.DeleteMessage(ctx, id); err != nil {
			return err
		}
		a = deletedActivity(m, now)
		return tx.AppendActivity(ctx, &a)
	})
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	c.emit(a)
	c.log.Info("message deleted", logx.MessageID(id))
	return nil
}

// Resend re-arms a DELIVERED or FAILED message: it returns to SCHEDULED and
// its job becomes incomplete and due now. The next dispatch run delivers it
// again and writes a new MessageDelivered row.
func (c *Controller) Resend(ctx context.Context, id int64) (model.Job, error) {
	now := c.clock()
	var job model.Job
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetMessage(ctx, id)
		if err != nil {
			return notFound(err, model.ErrMessageNotFound)
		}
		if m.Status == model.StatusScheduled {
			return model.ErrNotResendable
		}
		if err := tx.SetMessageStatus(ctx, id, model.StatusScheduled, now); err != nil {
			return err
		}
		if err := tx.RearmJob(ctx, id, now, now); err != nil {
			return err
		}
		job, err = tx.GetJobByMessage(ctx, id)
		return err
	})
	if err != nil {
		return model.Job{}, fmt.Errorf("resend message %d: %w", id, err)
	}
	metrics.AddScheduleWrites("resend", 1)
	c.log.Info("message re-armed", logx.MessageID(id))
	return job, nil
}

func (c *Controller) emit(a model.ActivityLog) {
	metrics.IncActivity(string(a.Type))
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeActivity, Time: a.Timestamp, Data: a})
}

func applyPatch(m model.Message, p MessagePatch) model.Message {
	if p.Type != nil {
		m.Type = *p.Type
	}
	if p.Recipients != nil {
		m.Recipients = model.SplitRecipients(strings.Join(*p.Recipients, ","))
	}
	if p.Subject != nil {
		m.Subject = strings.TrimSpace(*p.Subject)
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.Delay != nil {
		d := *p.Delay
		m.Delay = &d
	}
	if p.ScheduledAt != nil {
		m.ScheduledAt = utcPtr(p.ScheduledAt)
	}
	return m
}

func notFound(err, domain error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
