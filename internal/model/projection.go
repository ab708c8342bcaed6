package model

import "time"

type IntervalKind string

const (
	IntervalNone  IntervalKind = ""
	IntervalPause IntervalKind = "PAUSE"
	IntervalLunch IntervalKind = "LUNCH"
)

// OpenInterval is the pause or lunch period currently running, if any.
// At most one can be open, so it is a single value rather than two fields.
type OpenInterval struct {
	Kind  IntervalKind
	Since time.Time
}

func PauseInterval(since time.Time) OpenInterval {
	return OpenInterval{Kind: IntervalPause, Since: since}
}

func LunchInterval(since time.Time) OpenInterval {
	return OpenInterval{Kind: IntervalLunch, Since: since}
}

func (o OpenInterval) IsOpen() bool { return o.Kind != IntervalNone }

func (o OpenInterval) pauseSince() *time.Time {
	if o.Kind != IntervalPause {
		return nil
	}
	t := o.Since
	return &t
}

func (o OpenInterval) lunchSince() *time.Time {
	if o.Kind != IntervalLunch {
		return nil
	}
	t := o.Since
	return &t
}

// Projection is the derived state of a workday.
type Projection struct {
	Status            WorkdayStatus
	StartedAt         *time.Time
	EndedAt           *time.Time
	Open              OpenInterval
	TotalPauseMinutes int
	TotalLunchMinutes int
}

// Equal compares projections by instant, ignoring location.
func (p Projection) Equal(o Projection) bool {
	return p.Status == o.Status &&
		sameInstant(p.StartedAt, o.StartedAt) &&
		sameInstant(p.EndedAt, o.EndedAt) &&
		p.Open.Kind == o.Open.Kind &&
		p.Open.Since.Equal(o.Open.Since) &&
		p.TotalPauseMinutes == o.TotalPauseMinutes &&
		p.TotalLunchMinutes == o.TotalLunchMinutes
}

// Replay folds the event log, in stored order, into a projection.
func Replay(events []Event) Projection {
	p := Projection{Status: WorkdayStatusNotStarted}
	for _, e := range events {
		at := e.At
		switch e.Type {
		case EventStart:
			p.markStarted(at)
			p.Open = OpenInterval{}
			p.Status = WorkdayStatusActive
		case EventReconnect:
			p.markStarted(at)
			p.Open = OpenInterval{}
			p.Status = WorkdayStatusActive
		case EventPause:
			if p.Open.Kind != IntervalPause {
				p.closeOpen(at)
				p.Open = PauseInterval(at)
			}
			p.Status = WorkdayStatusPaused
		case EventLunch:
			if p.Open.Kind != IntervalLunch {
				p.closeOpen(at)
				p.Open = LunchInterval(at)
			}
			p.Status = WorkdayStatusLunch
		case EventResume:
			p.closeOpen(at)
			p.Status = WorkdayStatusActive
		case EventReset:
			p.closeOpen(at)
			p.markStarted(at)
			p.Status = WorkdayStatusActive
		case EventEnd:
			p.closeOpen(at)
			t := at
			p.EndedAt = &t
			p.Status = WorkdayStatusEnded
		}
	}
	return p
}

func (p *Projection) markStarted(at time.Time) {
	if p.StartedAt == nil {
		t := at
		p.StartedAt = &t
	}
}

// closeOpen credits the running interval up to at and clears it.
func (p *Projection) closeOpen(at time.Time) {
	switch p.Open.Kind {
	case IntervalPause:
		p.TotalPauseMinutes += ElapsedMinutes(p.Open.Since, at)
	case IntervalLunch:
		p.TotalLunchMinutes += ElapsedMinutes(p.Open.Since, at)
	}
	p.Open = OpenInterval{}
}

// ElapsedMinutes returns whole minutes from start to end, never negative.
func ElapsedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
