package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"finalword/internal/model"
)

// finalWordJobs restricts a job statement to the user's FINAL_WORD messages with a delay.
func finalWordJobs(userID int64) sq.Sqlizer {
	return sq.Expr("message_id IN (SELECT id FROM messages WHERE user_id = ? AND type = ? AND delay_days IS NOT NULL)",
		userID, string(model.FinalWord))
}

func (q queries) GetJobByMessage(ctx context.Context, messageID int64) (model.Job, error) {
	var r jobRow
	if err := q.get(ctx, &r, q.sb.Select(jobColumns...).From("jobs").Where(sq.Eq{"message_id": messageID})); err != nil {
		return model.Job{}, fmt.Errorf("get job of message %d: %w", messageID, err)
	}
	return r.model(), nil
}

func (q queries) InsertJob(ctx context.Context, j *model.Job) error {
	id, err := q.insert(ctx, q.sb.Insert("jobs").
		Columns("message_id", "due_at", "is_completed", "created_at", "updated_at").
		Values(j.MessageID, ms(j.DueAt), j.IsCompleted, ms(j.CreatedAt), ms(j.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	j.ID = id
	return nil
}

func (q queries) SetJobDueAt(ctx context.Context, messageID int64, dueAt, at time.Time) error {
	n, err := q.exec(ctx, q.sb.Update("jobs").
		Set("due_at", ms(dueAt)).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"message_id": messageID}))
	if err != nil {
		return fmt.Errorf("set due_at of message %d: %w", messageID, err)
	}
	if n == 0 {
		return fmt.Errorf("set due_at of message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

func (q queries) ResetFinalWordJobs(ctx context.Context, userID int64, now time.Time) (int64, error) {
	n, err := q.exec(ctx, q.sb.Update("jobs").
		Set("due_at", sq.Expr("CAST(? AS BIGINT) + (SELECT m.delay_days FROM messages m WHERE m.id = jobs.message_id) * CAST(? AS BIGINT)",
			ms(now), dayMillis)).
		Set("updated_at", ms(now)).
		Where(sq.Eq{"is_completed": false}).
		Where(finalWordJobs(userID)))
	if err != nil {
		return 0, fmt.Errorf("reset final word jobs of user %d: %w", userID, err)
	}
	return n, nil
}

func (q queries) ShiftFinalWordJobs(ctx context.Context, userID int64, delta time.Duration, at time.Time) (int64, error) {
	n, err := q.exec(ctx, q.sb.Update("jobs").
		Set("due_at", sq.Expr("due_at + CAST(? AS BIGINT)", delta.Milliseconds())).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"is_completed": false}).
		Where(finalWordJobs(userID)))
	if err != nil {
		return 0, fmt.Errorf("shift final word jobs of user %d: %w", userID, err)
	}
	return n, nil
}

func (q queries) RearmJob(ctx context.Context, messageID int64, dueAt, at time.Time) error {
	n, err := q.exec(ctx, q.sb.Update("jobs").
		Set("is_completed", false).
		Set("lease_until", nil).
		Set("due_at", ms(dueAt)).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"message_id": messageID}))
	if err != nil {
		return fmt.Errorf("rearm job of message %d: %w", messageID, err)
	}
	if n == 0 {
		return fmt.Errorf("rearm job of message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

func (q queries) CompleteJob(ctx context.Context, jobID int64, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.sb.Update("jobs").
		Set("is_completed", true).
		Set("lease_until", nil).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"id": jobID, "is_completed": false}))
	if err != nil {
		return false, fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return n == 1, nil
}

func (s *sqlStore) DueJobs(ctx context.Context, now time.Time, after Cursor, limit int) ([]model.DueJob, error) {
	if limit <= 0 {
		limit = 10
	}
	nowMS := ms(now)
	b := s.sb.Select(dueColumns...).
		From("jobs j").
		Join("messages m ON m.id = j.message_id").
		Join("users u ON u.id = m.user_id").
		Where(sq.LtOrEq{"j.due_at": nowMS}).
		Where(sq.Eq{"j.is_completed": false, "m.status": string(model.StatusScheduled)}).
		Where(sq.Or{sq.Eq{"j.lease_until": nil}, sq.Lt{"j.lease_until": nowMS}})
	if !after.IsZero() {
		c := ms(after.DueAt)
		b = b.Where(sq.Or{
			sq.Gt{"j.due_at": c},
			sq.And{sq.Eq{"j.due_at": c}, sq.Gt{"j.id": after.ID}},
		})
	}
	b = b.OrderBy("j.due_at ASC", "j.id ASC").Limit(uint64(limit))

	var rows []dueRow
	if err := s.selectAll(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	out := make([]model.DueJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *sqlStore) ClaimJob(ctx context.Context, jobID int64, now, until time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sb.Update("jobs").
		Set("lease_until", ms(until)).
		Set("updated_at", ms(now)).
		Where(sq.Eq{"id": jobID, "is_completed": false}).
		Where(sq.LtOrEq{"due_at": ms(now)}).
		Where(sq.Expr("message_id IN (SELECT id FROM messages WHERE status = ?)", string(model.StatusScheduled))).
		Where(sq.Or{sq.Eq{"lease_until": nil}, sq.Lt{"lease_until": ms(now)}}))
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	return n == 1, nil
}

func (s *sqlStore) ReleaseJob(ctx context.Context, jobID int64) error {
	if _, err := s.exec(ctx, s.sb.Update("jobs").Set("lease_until", nil).Where(sq.Eq{"id": jobID})); err != nil {
		return fmt.Errorf("release job %d: %w", jobID, err)
	}
	return nil
}

func (s *sqlStore) CountPendingJobs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.get(ctx, &n, s.sb.Select("COUNT(*)").From("jobs").Where(sq.Eq{"is_completed": false})); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}
