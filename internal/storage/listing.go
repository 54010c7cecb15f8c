package storage

import (
	"context"
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"finalword/internal/model"
)

var messageOrderColumns = map[string]string{
	"id":           "id",
	"delay":        "delay_days",
	"scheduled_at": "scheduled_at",
	"subject":      "subject",
	"created_at":   "created_at",
}

var activityOrderColumns = map[string]string{
	"id":        "id",
	"timestamp": "occurred_at",
}

// orderClauses maps "field"/"-field" terms onto whitelisted columns.
func orderClauses(terms []string, allowed map[string]string, def string) ([]string, error) {
	out := make([]string, 0, len(terms)+1)
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		dir := "ASC"
		if strings.HasPrefix(t, "-") {
			dir = "DESC"
			t = t[1:]
		}
		col, ok := allowed[t]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrInvalidOrdering, t)
		}
		out = append(out, col+" "+dir)
	}
	if len(out) == 0 {
		out = append(out, def)
	}
	return out, nil
}

// paginate applies LIMIT/OFFSET. SQLite rejects OFFSET without LIMIT, so an
// offset alone gets an unbounded limit.
func paginate(b sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit <= 0 && offset > 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return b
}

func (s *sqlStore) CountMessages(ctx context.Context, userID int64) ([]TypeCount, error) {
	var rows []TypeCount
	b := s.sb.Select("type", "status", "COUNT(*) AS n").
		From("messages").
		Where(sq.Eq{"user_id": userID}).
		GroupBy("type", "status")
	if err := s.selectAll(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("count messages of user %d: %w", userID, err)
	}
	return rows, nil
}

func (s *sqlStore) ListMessages(ctx context.Context, f MessageFilter) ([]model.Message, error) {
	order, err := orderClauses(f.OrderBy, messageOrderColumns, "id DESC")
	if err != nil {
		return nil, err
	}
	b := s.sb.Select(messageColumns...).From("messages").Where(sq.Eq{"user_id": f.UserID})
	if f.Type != "" {
		b = b.Where(sq.Eq{"type": string(f.Type)})
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		pat := "%" + q + "%"
		b = b.Where(sq.Or{sq.Expr("LOWER(recipients) LIKE ?", pat), sq.Expr("LOWER(subject) LIKE ?", pat)})
	}
	b = paginate(b.OrderBy(order...), f.Limit, f.Offset)

	var rows []messageRow
	if err := s.selectAll(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *sqlStore) ListActivity(ctx context.Context, f ActivityFilter) ([]model.ActivityLog, error) {
	order, err := orderClauses(f.OrderBy, activityOrderColumns, "id DESC")
	if err != nil {
		return nil, err
	}
	b := s.sb.Select(activityColumns...).From("activity_logs").Where(sq.Eq{"user_id": f.UserID}).OrderBy(order...)
	b = paginate(b, f.Limit, f.Offset)

	var rows []activityRow
	if err := s.selectAll(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]model.ActivityLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
