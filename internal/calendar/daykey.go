// Package calendar computes organizational calendar days.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DayKeyer maps instants to YYYY-MM-DD keys in a fixed organizational zone,
// regardless of the server's local zone.
type DayKeyer struct {
	loc *time.Location
	now func() time.Time
}

func NewDayKeyer(zone string, now func() time.Time) (*DayKeyer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	if now == nil {
		now = time.Now
	}
	return &DayKeyer{loc: loc, now: now}, nil
}

// Now returns the current instant from the configured clock.
func (d *DayKeyer) Now() time.Time { return d.now() }

// Today is evaluated on every call so a request just after midnight lands on the new day.
func (d *DayKeyer) Today() string { return d.KeyAt(d.now()) }

func (d *DayKeyer) KeyAt(t time.Time) string {
	return t.In(d.loc).Format(time.DateOnly)
}

func (d *DayKeyer) Location() *time.Location { return d.loc }
