package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "finalword/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local
}

// Job is the unit of work a schedule triggers.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // normalized cron spec or "@every <d>"
	every         time.Duration
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration

	runs    uint64
	running bool
	lastErr string
	lastRun time.Time
	lastDur time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	// base is canceled on Stop so in-flight jobs observe shutdown.
	base   context.Context
	cancel context.CancelFunc

	parser cron.Parser
	// jitter picks the startup spread for interval schedules.
	jitter func(max time.Duration) time.Duration
	c      *cron.Cron
	defs   []*scheduleDef
}

type ScheduleInfo struct {
	Name          string
	Spec          string
	Timeout       time.Duration
	StartupSpread time.Duration
	Next          time.Time
	Prev          time.Time
	Runs          uint64
	Running       bool
	LastRun       time.Time
	LastDuration  time.Duration
	LastError     string
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
