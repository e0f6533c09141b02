// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule reduces every schedule format to a single question: given an
// instant, when does the task fire next? The runner never sees the
// difference between intervals and cron expressions.
type Schedule interface {
	Next(after time.Time) time.Time
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.every)
}

// Every returns a fixed-interval schedule. d must be positive.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// Cron parses a standard five-field cron expression (or a descriptor
// like "@hourly") into a Schedule.
func Cron(expr string) (Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}
