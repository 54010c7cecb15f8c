package storage

import (
	"context"
	"fmt"

	"finalword/internal/model"
)

func (q queries) AppendActivity(ctx context.Context, a *model.ActivityLog) error {
	id, err := q.insert(ctx, q.sb.Insert("activity_logs").
		Columns("user_id", "type", "occurred_at", "description").
		Values(a.UserID, string(a.Type), ms(a.Timestamp), a.Description))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	a.ID = id
	return nil
}
