// Package query serves the read-only projections: home stats and the
// message and activity listings.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"finalword/internal/model"
	"finalword/internal/storage"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Stats is the per-user home summary.
type Stats struct {
	LastCheckin *time.Time                `json:"last_checkin"`
	Interval    int                       `json:"interval"`
	Total       map[model.MessageType]int `json:"total"`
	Delivered   map[model.MessageType]int `json:"delivered"`
}

// MessageQuery filters the message listing. Ordering terms name a field
// ("delay", "scheduled_at", "subject", "created_at", "id"), prefixed with "-"
// for descending. Default is newest first.
type MessageQuery struct {
	Type     model.MessageType
	Search   string
	Ordering []string
	Limit    int
	Offset   int
}

// ActivityQuery orders by "timestamp" or "id"; default is newest first.
type ActivityQuery struct {
	Ordering []string
	Limit    int
	Offset   int
}

// Reader is the storage surface queries need.
type Reader interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetMessage(ctx context.Context, id int64) (model.Message, error)
	CountMessages(ctx context.Context, userID int64) ([]storage.TypeCount, error)
	ListMessages(ctx context.Context, f storage.MessageFilter) ([]model.Message, error)
	ListActivity(ctx context.Context, f storage.ActivityFilter) ([]model.ActivityLog, error)
}

type Service struct {
	store Reader
}

func New(store Reader) *Service { return &Service{store: store} }

func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Stats{}, mapErr(err, model.ErrUserNotFound)
	}
	counts, err := s.store.CountMessages(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		LastCheckin: u.LastCheckin,
		Interval:    u.Interval,
		Total:       map[model.MessageType]int{model.FinalWord: 0, model.TimeCapsule: 0},
		Delivered:   map[model.MessageType]int{model.FinalWord: 0, model.TimeCapsule: 0},
	}
	for _, c := range counts {
		st.Total[c.Type] += c.Count
		if c.Status == model.StatusDelivered {
			st.Delivered[c.Type] += c.Count
		}
	}
	return st, nil
}

func (s *Service) Messages(ctx context.Context, userID int64, q MessageQuery) ([]model.Message, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, model.ErrInvalidType
	}
	out, err := s.store.ListMessages(ctx, storage.MessageFilter{
		UserID:  userID,
		Type:    q.Type,
		Search:  strings.TrimSpace(q.Search),
		OrderBy: orderOrDefault(q.Ordering),
		Limit:   clampLimit(q.Limit),
		Offset:  max(q.Offset, 0),
	})
	return out, mapErr(err, nil)
}

func (s *Service) Activity(ctx context.Context, userID int64, q ActivityQuery) ([]model.ActivityLog, error) {
	out, err := s.store.ListActivity(ctx, storage.ActivityFilter{
		UserID:  userID,
		OrderBy: orderOrDefault(q.Ordering),
		Limit:   clampLimit(q.Limit),
		Offset:  max(q.Offset, 0),
	})
	return out, mapErr(err, nil)
}

// Message returns one of the user's messages. Another user's message is
// reported as not found.
func (s *Service) Message(ctx context.Context, userID, id int64) (model.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return model.Message{}, mapErr(err, model.ErrMessageNotFound)
	}
	if m.UserID != userID {
		return model.Message{}, model.ErrMessageNotFound
	}
	return m, nil
}

func orderOrDefault(o []string) []string {
	if len(o) == 0 {
		return []string{"-id"}
	}
	return o
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

func mapErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case notFound != nil && errors.Is(err, storage.ErrNotFound):
		return notFound
	case errors.Is(err, storage.ErrInvalidOrdering):
		return model.Wrap(model.CodeInvalidArgument, "invalid ordering", err)
	}
	return err
}
