// Package scheduler advances cron-triggered workflows: every tick it asks
// the store for scheduled jobs due to fire, compare-and-swaps each one's
// next fire time so two scheduler instances racing on the same tick only
// enqueue it once, and hands the run off to the worker pool over the event
// bus's job queue.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser matches the standard five-field grammar with an optional
// leading seconds field, plus named descriptors (@daily, @hourly, ...).
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ValidateCronExpr reports whether expr parses under the scheduler's cron
// grammar, for use at schedule-create time.
func ValidateCronExpr(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// nextFire computes the next time cronExpr fires strictly after now, in the
// given timezone (the zero value falls back to now's own location).
func nextFire(cronExpr, timezone string, now time.Time) (time.Time, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	if cronExpr == "" {
		return time.Time{}, fmt.Errorf("scheduled job missing cron expression")
	}
	loc := now.Location()
	if timezone != "" {
		tz, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = tz
	}
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	next := schedule.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q has no future occurrence", cronExpr)
	}
	return next.UTC(), nil
}
