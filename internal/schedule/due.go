// Package schedule derives job due times and keeps them in step with
// message edits, interval changes and check-ins.
package schedule

import (
	"time"

	"finalword/internal/model"
)

// DueAt computes the due time of m for user u at instant now.
//
// TIME_CAPSULE fires at scheduled_at. FINAL_WORD fires delay+interval days
// after now, where now is the moment of the triggering event. The result is
// never clamped; a value in the past is simply due on the next dispatch tick.
func DueAt(m model.Message, u model.User, now time.Time) time.Time {
	switch m.Type {
	case model.TimeCapsule:
		if m.ScheduledAt != nil {
			return m.ScheduledAt.UTC()
		}
	case model.FinalWord:
		return now.UTC().Add(days(derefInt(m.Delay) + u.Interval))
	}
	return now.UTC()
}

// CheckinDueAt is the due time after a check-in at now: the interval is
// folded into "now", so only the delay remains.
func CheckinDueAt(delay int, now time.Time) time.Time {
	return now.UTC().Add(days(delay))
}

// ShiftDelta is the signed shift applied to FINAL_WORD jobs when the user's
// interval changes from oldInterval to newInterval.
func ShiftDelta(oldInterval, newInterval int) time.Duration {
	return days(newInterval - oldInterval)
}

// ScheduleChanged reports whether the field that drives due_at differs
// between the persisted (before) and the incoming (after) message.
func ScheduleChanged(before, after model.Message) bool {
	switch after.Type {
	case model.FinalWord:
		return derefInt(before.Delay) != derefInt(after.Delay) || (before.Delay == nil) != (after.Delay == nil)
	case model.TimeCapsule:
		if before.ScheduledAt == nil || after.ScheduledAt == nil {
			return before.ScheduledAt != after.ScheduledAt
		}
		return !before.ScheduledAt.Equal(*after.ScheduledAt)
	}
	return false
}

func days(n int) time.Duration { return time.Duration(n) * model.Day }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
