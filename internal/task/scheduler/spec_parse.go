package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a dispatch cadence. Interval specs get a startup spread;
// cron specs fire on wall-clock boundaries in the service timezone.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// minInterval keeps a typo like "1ms" from hammering the database.
const minInterval = time.Second

// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts "*/5 * * * *", "@hourly", "@every 1m" or a bare
// duration such as "90s". "@every" and bare durations become intervals.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		return parseInterval(raw, rest)
	}
	if !strings.ContainsAny(s, " \t@") {
		if _, err := time.ParseDuration(s); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *' or a duration like '1m')", raw)
		}
		return parseInterval(raw, s)
	}
	if _, err := cronParser.Parse(s); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", raw, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: s}, nil
}

func parseInterval(raw, v string) (ParsedSpec, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", raw, err)
	}
	if d < minInterval {
		return ParsedSpec{}, fmt.Errorf("interval %q must be at least %s", raw, minInterval)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}
