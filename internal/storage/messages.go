package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"finalword/internal/model"
)

func (q queries) GetMessage(ctx context.Context, id int64) (model.Message, error) {
	var r messageRow
	if err := q.get(ctx, &r, q.sb.Select(messageColumns...).From("messages").Where(sq.Eq{"id": id})); err != nil {
		return model.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return r.model(), nil
}

func (q queries) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.Status == "" {
		m.Status = model.StatusScheduled
	}
	id, err := q.insert(ctx, q.sb.Insert("messages").
		Columns("user_id", "type", "status", "recipients", "subject", "body", "delay_days", "scheduled_at", "created_at", "updated_at").
		Values(m.UserID, string(m.Type), string(m.Status), model.JoinRecipients(m.Recipients), m.Subject, m.Text,
			nullInt(m.Delay), nullMS(m.ScheduledAt), ms(m.CreatedAt), ms(m.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID = id
	return nil
}

func (q queries) UpdateMessage(ctx context.Context, m model.Message) error {
	n, err := q.exec(ctx, q.sb.Update("messages").
		Set("recipients", model.JoinRecipients(m.Recipients)).
		Set("subject", m.Subject).
		Set("body", m.Text).
		Set("delay_days", nullInt(m.Delay)).
		Set("scheduled_at", nullMS(m.ScheduledAt)).
		Set("updated_at", ms(m.UpdatedAt)).
		Where(sq.Eq{"id": m.ID}))
	if err != nil {
		return fmt.Errorf("update message %d: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update message %d: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (q queries) SetMessageStatus(ctx context.Context, id int64, status model.Status, at time.Time) error {
	n, err := q.exec(ctx, q.sb.Update("messages").
		Set("status", string(status)).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set message %d status: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("set message %d status: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMessage removes the job explicitly before the message so the
// cascade does not depend on the SQLite foreign_keys pragma.
func (q queries) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, q.sb.Delete("jobs").Where(sq.Eq{"message_id": id})); err != nil {
		return fmt.Errorf("delete job of message %d: %w", id, err)
	}
	n, err := q.exec(ctx, q.sb.Delete("messages").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete message %d: %w", id, ErrNotFound)
	}
	return nil
}
