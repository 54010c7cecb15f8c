package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"finalword/internal/model"
)

func (q queries) GetUser(ctx context.Context, id int64) (model.User, error) {
	var r userRow
	if err := q.get(ctx, &r, q.sb.Select(userColumns...).From("users").Where(sq.Eq{"id": id})); err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return r.model(), nil
}

func (q queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var r userRow
	if err := q.get(ctx, &r, q.sb.Select(userColumns...).From("users").Where(sq.Eq{"email": email})); err != nil {
		return model.User{}, fmt.Errorf("get user %q: %w", email, err)
	}
	return r.model(), nil
}

func (q queries) InsertUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	id, err := q.insert(ctx, q.sb.Insert("users").
		Columns("email", "first_name", "last_name", "interval_days", "last_checkin", "created_at", "updated_at").
		Values(u.Email, u.FirstName, u.LastName, u.Interval, nullMS(u.LastCheckin), ms(u.CreatedAt), ms(u.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (q queries) UpdateUser(ctx context.Context, u model.User) error {
	n, err := q.exec(ctx, q.sb.Update("users").
		Set("first_name", u.FirstName).
		Set("last_name", u.LastName).
		Set("interval_days", u.Interval).
		Set("updated_at", ms(u.UpdatedAt)).
		Where(sq.Eq{"id": u.ID}))
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update user %d: %w", u.ID, ErrNotFound)
	}
	return nil
}

func (q queries) SetLastCheckin(ctx context.Context, userID int64, at time.Time) error {
	n, err := q.exec(ctx, q.sb.Update("users").
		Set("last_checkin", ms(at)).
		Set("updated_at", ms(at)).
		Where(sq.Eq{"id": userID}))
	if err != nil {
		return fmt.Errorf("set last checkin %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("set last checkin %d: %w", userID, ErrNotFound)
	}
	return nil
}
