// Package dispatch implements the periodic delivery pass over due jobs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"finalword/internal/eventbus"
	"finalword/internal/metrics"
	"finalword/internal/model"
	"finalword/internal/notifier"
	"finalword/internal/schedule"
	"finalword/internal/storage"
	logx "finalword/pkg/logx"
)

type Config struct {
	BatchSize  int
	JobTimeout time.Duration
	// Lease bounds how long a claimed job is hidden from other runs. It
	// must exceed JobTimeout plus the completion write.
	Lease time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.Lease <= c.JobTimeout {
		c.Lease = 2*c.JobTimeout + 30*time.Second
	}
	return c
}

// Report summarizes one invocation. Completed counts jobs whose completion
// committed in this run (Delivered + Failed).
type Report struct {
	RunID     string        `json:"run_id"`
	Started   time.Time     `json:"started"`
	Scanned   int           `json:"scanned"`
	Completed int           `json:"completed"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Faulted   int           `json:"faulted"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

type outcome string

const (
	outcomeDelivered outcome = "delivered"
	outcomeFailed    outcome = "failed"
	outcomeFaulted   outcome = "faulted"
	outcomeSkipped   outcome = "skipped"
)

type Dispatcher struct {
	store    storage.Store
	notifier notifier.Notifier
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time

	mu  sync.Mutex
	cfg Config
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }
func WithLogger(l logx.Logger) Option       { return func(d *Dispatcher) { d.log = l } }
func WithBus(b eventbus.Bus) Option         { return func(d *Dispatcher) { d.bus = b } }

func New(st storage.Store, n notifier.Notifier, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: st, notifier: n, now: time.Now, log: logx.Nop(), bus: eventbus.Nop(), cfg: cfg.withDefaults()}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	if d.bus == nil {
		d.bus = eventbus.Nop()
	}
	d.log = d.log.With(logx.String("comp", "dispatch"))
	return d
}

// Apply swaps batch size and timeouts; the next Run picks them up.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

// Run performs one pass: it walks jobs with due_at <= now in (due_at, id)
// order, batch by batch, and handles each one independently. A job fault is
// logged and leaves the job incomplete for the next run; it never aborts the
// pass. Cancellation is honored between jobs, and every completed job has
// already been committed when Run returns.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	rep := Report{RunID: uuid.NewString(), Started: d.now().UTC()}
	log := d.log.With(logx.String("run_id", rep.RunID))
	now := rep.Started

	var (
		cursor storage.Cursor
		runErr error
	)
scan:
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		batch, err := d.store.DueJobs(ctx, now, cursor, cfg.BatchSize)
		if err != nil {
			runErr = fmt.Errorf("load due jobs: %w", err)
			break
		}
		for _, dj := range batch {
			if err := ctx.Err(); err != nil {
				runErr = err
				break scan
			}
			cursor = storage.Cursor{DueAt: dj.Job.DueAt, ID: dj.Job.ID}
			rep.Scanned++

			switch d.process(ctx, cfg, log, rep.RunID, dj) {
			case outcomeDelivered:
				rep.Delivered++
				rep.Completed++
			case outcomeFailed:
				rep.Failed++
				rep.Completed++
			case outcomeFaulted:
				rep.Faulted++
			case outcomeSkipped:
				rep.Skipped++
			}
		}
		if len(batch) < cfg.BatchSize {
			break
		}
	}

	rep.Duration = d.now().Sub(rep.Started)
	result := "ok"
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		result = "canceled"
	case runErr != nil:
		result = "error"
	}
	metrics.ObserveDispatchRun(result, rep.Duration)
	if runErr == nil {
		if n, err := d.store.CountPendingJobs(ctx); err == nil {
			metrics.SetPendingJobs(n)
		}
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchDone, Time: d.now().UTC(), Data: rep})

	fields := []logx.Field{
		logx.Int("count", rep.Completed),
		logx.Int("scanned", rep.Scanned),
		logx.Int("failed", rep.Failed),
		logx.Int("faulted", rep.Faulted),
		logx.Duration("took", rep.Duration),
	}
	if runErr != nil {
		log.Warn("processed jobs", append(fields, logx.Err(runErr))...)
		return rep, runErr
	}
	log.Info("processed jobs", fields...)
	return rep, nil
}

func (d *Dispatcher) process(ctx context.Context, cfg Config, log logx.Logger, runID string, dj model.DueJob) outcome {
	log = log.With(logx.JobID(dj.Job.ID), logx.MessageID(dj.Message.ID))
	log.Debug("job processing")

	claimAt := d.now().UTC()
	ok, err := d.store.ClaimJob(ctx, dj.Job.ID, claimAt, claimAt.Add(cfg.Lease))
	if err != nil {
		log.Error("job claim failed", logx.Err(err))
		return d.finish(runID, dj, outcomeFaulted, err)
	}
	if !ok {
		log.Debug("job no longer claimable")
		return d.finish(runID, dj, outcomeSkipped, nil)
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	delivered, err := d.send(sendCtx, dj)
	cancel()
	if err != nil {
		d.release(ctx, log, dj.Job.ID)
		log.Error("job delivery fault", logx.Err(err))
		return d.finish(runID, dj, outcomeFaulted, err)
	}

	status := model.StatusDelivered
	if !delivered {
		status = model.StatusFailed
	}

	// The mail is out; commit even if the run is being canceled.
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer wcancel()
	doneAt := d.now().UTC()
	var completed bool
	err = d.store.InTx(wctx, func(tx storage.Tx) error {
		var err error
		_, completed, err = schedule.Complete(wctx, tx, dj, status, doneAt)
		return err
	})
	if err != nil {
		d.release(ctx, log, dj.Job.ID)
		log.Error("job completion failed", logx.Err(err))
		return d.finish(runID, dj, outcomeFaulted, err)
	}
	if !completed {
		log.Debug("job already completed")
		return d.finish(runID, dj, outcomeSkipped, nil)
	}

	metrics.ObserveDispatchLag(doneAt.Sub(dj.Job.DueAt))
	if status == model.StatusFailed {
		log.Warn("message delivery failed", logx.UserID(dj.User.ID))
		return d.finish(runID, dj, outcomeFailed, nil)
	}
	log.Debug("job processed")
	return d.finish(runID, dj, outcomeDelivered, nil)
}

// send isolates a notifier panic into a job fault.
func (d *Dispatcher) send(ctx context.Context, dj model.DueJob) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v\n%s", r, debug.Stack())
		}
	}()
	return d.notifier.Send(ctx, notifier.Envelope{
		Key:        DeliveryKey(dj),
		MessageID:  dj.Message.ID,
		Type:       dj.Message.Type,
		Recipients: dj.Message.Recipients,
		Subject:    dj.Message.Subject,
		Text:       dj.Message.Text,
		SenderName: dj.User.DisplayName(),
	})
}

func (d *Dispatcher) release(ctx context.Context, log logx.Logger, jobID int64) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.store.ReleaseJob(rctx, jobID); err != nil {
		log.Warn("job lease release failed", logx.Err(err))
	}
}

func (d *Dispatcher) finish(runID string, dj model.DueJob, o outcome, err error) outcome {
	metrics.IncDispatchJob(string(o))
	ev := eventbus.Delivery{RunID: runID, JobID: dj.Job.ID, MessageID: dj.Message.ID, UserID: dj.User.ID, Status: string(o)}
	if err != nil {
		ev.Err = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivery, Time: d.now().UTC(), Data: ev})
	return o
}

// DeliveryKey identifies one scheduled delivery of a message. A re-armed
// or rescheduled job gets a new key because its due_at differs.
func DeliveryKey(dj model.DueJob) string {
	return fmt.Sprintf("delivery:%d:%d", dj.Message.ID, dj.Job.DueAt.UnixMilli())
}
