package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finalword/internal/model"
	logx "finalword/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, st Store, email string, interval int) model.User {
	t.Helper()
	u := model.User{Email: email, Interval: interval, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, st.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertUser(context.Background(), &u)
	}))
	return u
}

func seedMessage(t *testing.T, st Store, m model.Message, due time.Time) (model.Message, model.Job) {
	t.Helper()
	ctx := context.Background()
	m.CreatedAt, m.UpdatedAt = t0, t0
	var j model.Job
	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertMessage(ctx, &m); err != nil {
			return err
		}
		j = model.Job{MessageID: m.ID, DueAt: due, CreatedAt: t0, UpdatedAt: t0}
		return tx.InsertJob(ctx, &j)
	}))
	return m, j
}

func finalWord(userID int64, delay int) model.Message {
	return model.Message{UserID: userID, Type: model.FinalWord, Recipients: []string{"a@x.io", "b@x.io"}, Subject: "bye", Text: "t", Delay: model.IntPtr(delay)}
}

func timeCapsule(userID int64, at time.Time) model.Message {
	return model.Message{UserID: userID, Type: model.TimeCapsule, Recipients: []string{"a@x.io"}, Subject: "later", Text: "t", ScheduledAt: &at}
}

func TestMessageRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "Owner@Example.com ", 3)

	got, err := st.GetUserByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, 3, got.Interval)
	assert.Nil(t, got.LastCheckin)

	m, j := seedMessage(t, st, finalWord(u.ID, 30), t0.Add(33*model.Day))
	gm, err := st.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, gm.Status)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, gm.Recipients)
	require.NotNil(t, gm.Delay)
	assert.Equal(t, 30, *gm.Delay)
	assert.Nil(t, gm.ScheduledAt)

	gj, err := st.GetJobByMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, gj.ID)
	assert.True(t, gj.DueAt.Equal(t0.Add(33*model.Day)))
	assert.False(t, gj.IsCompleted)

	_, err = st.GetMessage(ctx, 9999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBulkResetAndShiftTouchOnlyIncompleteFinalWord(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)
	other := seedUser(t, st, "b@example.com", 0)

	fw, _ := seedMessage(t, st, finalWord(u.ID, 30), t0.Add(30*model.Day))
	done, doneJob := seedMessage(t, st, finalWord(u.ID, 5), t0.Add(5*model.Day))
	tc, _ := seedMessage(t, st, timeCapsule(u.ID, t0.Add(10*model.Day)), t0.Add(10*model.Day))
	foreign, _ := seedMessage(t, st, finalWord(other.ID, 1), t0.Add(model.Day))

	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		ok, err := tx.CompleteJob(ctx, doneJob.ID, t0)
		require.True(t, ok)
		return err
	}))

	checkin := t0.Add(5 * model.Day)
	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		n, err := tx.ResetFinalWordJobs(ctx, u.ID, checkin)
		assert.Equal(t, int64(1), n)
		return err
	}))

	dueOf := func(id int64) time.Time {
		j, err := st.GetJobByMessage(ctx, id)
		require.NoError(t, err)
		return j.DueAt
	}
	assert.True(t, dueOf(fw.ID).Equal(checkin.Add(30*model.Day)))
	assert.True(t, dueOf(done.ID).Equal(t0.Add(5*model.Day)))
	assert.True(t, dueOf(tc.ID).Equal(t0.Add(10*model.Day)))
	assert.True(t, dueOf(foreign.ID).Equal(t0.Add(model.Day)))

	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		_, err := tx.ShiftFinalWordJobs(ctx, u.ID, -3*model.Day, checkin)
		return err
	}))
	assert.True(t, dueOf(fw.ID).Equal(checkin.Add(27*model.Day)))
	assert.True(t, dueOf(tc.ID).Equal(t0.Add(10*model.Day)))
}

func TestInTxRollsBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)
	m, _ := seedMessage(t, st, finalWord(u.ID, 30), t0.Add(30*model.Day))

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx Tx) error {
		if _, err := tx.ShiftFinalWordJobs(ctx, u.ID, model.Day, t0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	j, err := st.GetJobByMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, j.DueAt.Equal(t0.Add(30*model.Day)))
}

func TestDueJobsKeysetAndLease(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)

	var jobs []model.Job
	for i := 0; i < 5; i++ {
		_, j := seedMessage(t, st, finalWord(u.ID, 0), t0.Add(time.Duration(i)*time.Minute))
		jobs = append(jobs, j)
	}
	seedMessage(t, st, finalWord(u.ID, 0), t0.Add(time.Hour)) // not yet due

	now := t0.Add(10 * time.Minute)
	page1, err := st.DueJobs(ctx, now, Cursor{}, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, jobs[0].ID, page1[0].Job.ID)
	assert.Equal(t, "a@example.com", page1[0].User.Email)

	last := page1[1].Job
	page2, err := st.DueJobs(ctx, now, Cursor{DueAt: last.DueAt, ID: last.ID}, 10)
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, jobs[2].ID, page2[0].Job.ID)

	ok, err := st.ClaimJob(ctx, jobs[2].ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.ClaimJob(ctx, jobs[2].ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be claimed twice")

	leased, err := st.DueJobs(ctx, now, Cursor{}, 10)
	require.NoError(t, err)
	assert.Len(t, leased, 4)

	ok, err = st.ClaimJob(ctx, jobs[2].ID, now.Add(2*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is claimable")

	require.NoError(t, st.ReleaseJob(ctx, jobs[2].ID))
	all, err := st.DueJobs(ctx, now, Cursor{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestClaimJobRechecksEligibility(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)
	now := t0.Add(time.Hour)

	_, later := seedMessage(t, st, finalWord(u.ID, 0), now.Add(time.Minute))
	ok, err := st.ClaimJob(ctx, later.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "job due in the future")

	m, j := seedMessage(t, st, finalWord(u.ID, 0), t0)
	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		return tx.SetMessageStatus(ctx, m.ID, model.StatusDelivered, t0)
	}))
	ok, err = st.ClaimJob(ctx, j.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "message no longer scheduled")

	_, due := seedMessage(t, st, finalWord(u.ID, 0), now)
	ok, err = st.ClaimJob(ctx, due.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "due_at == now is claimable")
}

func TestCompleteJobIsCompareAndSet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)
	_, j := seedMessage(t, st, finalWord(u.ID, 0), t0)

	var first, second bool
	require.NoError(t, st.InTx(ctx, func(tx Tx) (err error) {
		first, err = tx.CompleteJob(ctx, j.ID, t0)
		return err
	}))
	require.NoError(t, st.InTx(ctx, func(tx Tx) (err error) {
		second, err = tx.CompleteJob(ctx, j.ID, t0)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestDeleteMessageRemovesJob(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)
	m, _ := seedMessage(t, st, finalWord(u.ID, 1), t0)

	require.NoError(t, st.InTx(ctx, func(tx Tx) error { return tx.DeleteMessage(ctx, m.ID) }))
	_, err := st.GetJobByMessage(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.InTx(ctx, func(tx Tx) error { return tx.DeleteMessage(ctx, m.ID) })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDedup(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	until := t0.Add(time.Hour)
	require.NoError(t, st.PutDedup(ctx, "k", until))
	got, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(until))

	require.NoError(t, st.PutDedup(ctx, "k", until.Add(time.Hour)))
	got, _, err = st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.True(t, got.Equal(until.Add(time.Hour)))
}

func TestListingAndCounts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "a@example.com", 0)

	a, _ := seedMessage(t, st, finalWord(u.ID, 10), t0)
	b, _ := seedMessage(t, st, finalWord(u.ID, 2), t0)
	c, _ := seedMessage(t, st, timeCapsule(u.ID, t0.Add(model.Day)), t0)
	require.NoError(t, st.InTx(ctx, func(tx Tx) error {
		return tx.SetMessageStatus(ctx, c.ID, model.StatusDelivered, t0)
	}))

	all, err := st.ListMessages(ctx, MessageFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID, "default order is newest first")

	byDelay, err := st.ListMessages(ctx, MessageFilter{UserID: u.ID, Type: model.FinalWord, OrderBy: []string{"delay"}})
	require.NoError(t, err)
	require.Len(t, byDelay, 2)
	assert.Equal(t, b.ID, byDelay[0].ID)
	assert.Equal(t, a.ID, byDelay[1].ID)

	found, err := st.ListMessages(ctx, MessageFilter{UserID: u.ID, Search: "LATER"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ID)

	paged, err := st.ListMessages(ctx, MessageFilter{UserID: u.ID, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	_, err = st.ListMessages(ctx, MessageFilter{UserID: u.ID, OrderBy: []string{"body"}})
	assert.Error(t, err)

	counts, err := st.CountMessages(ctx, u.ID)
	require.NoError(t, err)
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	assert.Equal(t, 3, total)
}
