package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays the first run of an interval schedule; afterwards it
// delegates to the base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// intervalSchedule returns a cron.Every schedule whose first activation is
// pushed back by a random spread of at most min(every, maxStartupSpread), so
// several processes started together don't hit the store in lockstep.
func intervalSchedule(every time.Duration, now time.Time, jitter func(time.Duration) time.Duration) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := min(every, maxStartupSpread)
	if spreadMax <= 0 || jitter == nil {
		return base, 0
	}
	j := jitter(spreadMax)
	if j <= 0 {
		return base, 0
	}
	return &spreadSchedule{base: base, first: now.Add(every + j)}, j
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
