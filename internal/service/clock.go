package service

import (
	"time"

	"routine-planner/internal/model"
)

// Clock derives "now" and "today" for every job and request. Today is the
// calendar day in the configured location, never the server's local zone.
type Clock struct {
	now func() time.Time
	loc *time.Location
}

func NewClock(now func() time.Time, loc *time.Location) Clock {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: now, loc: loc}
}

func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Clock) Today() model.Date {
	return model.DateOf(c.Now().In(c.Location()))
}
