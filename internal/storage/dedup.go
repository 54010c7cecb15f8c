package storage

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.exec(ctx, s.sb.Insert("dedup").
		Columns("key", "until").
		Values(key, ms(until)).
		Suffix("ON CONFLICT(key) DO UPDATE SET until = excluded.until"))
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var until int64
	err := s.get(ctx, &until, s.sb.Select("until").From("dedup").Where(sq.Eq{"key": key}))
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromMS(until), true, nil
}

func (s *sqlStore) pruneExpired(ctx context.Context) error {
	_, err := s.exec(ctx, s.sb.Delete("dedup").Where(sq.Lt{"until": ms(time.Now())}))
	return err
}
