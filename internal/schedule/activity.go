package schedule

import (
	"context"
	"fmt"
	"time"

	"finalword/internal/model"
	"finalword/internal/storage"
)

func describe(m model.Message, verb string) string {
	return fmt.Sprintf(`%s - "%s" %s.`, m.Type.Label(), m.Subject, verb)
}

func createdActivity(m model.Message, at time.Time) model.ActivityLog {
	return model.ActivityLog{UserID: m.UserID, Type: model.ActivityMessageCreated, Timestamp: at, Description: describe(m, "scheduled")}
}

func deletedActivity(m model.Message, at time.Time) model.ActivityLog {
	return model.ActivityLog{UserID: m.UserID, Type: model.ActivityMessageDeleted, Timestamp: at, Description: describe(m, "deleted")}
}

func checkedInActivity(userID int64, at time.Time) model.ActivityLog {
	return model.ActivityLog{UserID: userID, Type: model.ActivityCheckedIn, Timestamp: at, Description: "Checked in"}
}

// DeliveredActivity is the single row written on a job's completion
// transition. A FAILED outcome is still a completion and is described as such.
func DeliveredActivity(m model.Message, status model.Status, at time.Time) model.ActivityLog {
	verb := "delivered"
	if status == model.StatusFailed {
		verb = "failed to deliver"
	}
	return model.ActivityLog{UserID: m.UserID, Type: model.ActivityMessageDelivered, Timestamp: at, Description: describe(m, verb)}
}

// Complete applies a job's completion transition inside tx: the
// is_completed CAS, the message status and one MessageDelivered row. When
// the CAS loses (the job was already completed elsewhere) nothing is
// written and ok is false.
func Complete(ctx context.Context, tx storage.Tx, dj model.DueJob, status model.Status, now time.Time) (model.ActivityLog, bool, error) {
	ok, err := tx.CompleteJob(ctx, dj.Job.ID, now)
	if err != nil || !ok {
		return model.ActivityLog{}, false, err
	}
	if err := tx.SetMessageStatus(ctx, dj.Message.ID, status, now); err != nil {
		return model.ActivityLog{}, false, err
	}
	a := DeliveredActivity(dj.Message, status, now)
	if err := tx.AppendActivity(ctx, &a); err != nil {
		return model.ActivityLog{}, false, err
	}
	return a, true, nil
}
