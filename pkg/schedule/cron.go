package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron is a parsed five-field cron expression bound to a timezone.
type Cron struct {
	expr     string
	location *time.Location
	schedule cron.Schedule
}

// ParseCron validates expr and loads timezone. An empty timezone means UTC.
func ParseCron(expr, timezone string) (*Cron, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return &Cron{expr: expr, location: loc, schedule: s}, nil
}

// Next returns the first activation strictly after from, in UTC.
func (c *Cron) Next(from time.Time) time.Time {
	return c.schedule.Next(from.In(c.location)).UTC()
}

func (c *Cron) String() string {
	return c.expr
}
