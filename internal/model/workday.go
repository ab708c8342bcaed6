package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type WorkdayStatus string

const (
	WorkdayStatusNotStarted WorkdayStatus = "NOT_STARTED"
	WorkdayStatusActive     WorkdayStatus = "ACTIVE"
	WorkdayStatusPaused     WorkdayStatus = "PAUSED"
	WorkdayStatusLunch      WorkdayStatus = "LUNCH"
	WorkdayStatusEnded      WorkdayStatus = "ENDED"
)

type EventType string

const (
	EventStart     EventType = "START"
	EventPause     EventType = "PAUSE"
	EventLunch     EventType = "LUNCH"
	EventResume    EventType = "RESUME"
	EventEnd       EventType = "END"
	EventReconnect EventType = "RECONNECT"
	EventReset     EventType = "RESET"
)

// Event is one entry of the append-only audit log of a workday.
type Event struct {
	Type EventType `bson:"type" json:"type"`
	At   time.Time `bson:"at" json:"at"`
}

// WorkdayRecord is the per-user, per-day document. Events are the source of
// truth; the remaining fields are a cached projection rewritten on every
// accepted transition.
type WorkdayRecord struct {
	ID                bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID            string        `bson:"user_id" json:"user_id"`
	Date              string        `bson:"date" json:"date"` // YYYY-MM-DD, organizational zone
	Status            WorkdayStatus `bson:"status" json:"status"`
	StartedAt         *time.Time    `bson:"started_at,omitempty" json:"started_at"`
	EndedAt           *time.Time    `bson:"ended_at,omitempty" json:"ended_at"`
	PauseStartedAt    *time.Time    `bson:"pause_started_at,omitempty" json:"pause_started_at"`
	LunchStartedAt    *time.Time    `bson:"lunch_started_at,omitempty" json:"lunch_started_at"`
	TotalPauseMinutes int           `bson:"total_pause_minutes" json:"total_pause_minutes"`
	TotalLunchMinutes int           `bson:"total_lunch_minutes" json:"total_lunch_minutes"`
	Events            []Event       `bson:"events" json:"events"`
	Revision          int           `bson:"revision" json:"-"`
	CreatedAt         time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `bson:"updated_at" json:"updated_at"`
}

// NewWorkdayRecord returns an unsaved NOT_STARTED record for the given day.
func NewWorkdayRecord(userID, date string) *WorkdayRecord {
	return &WorkdayRecord{
		UserID: userID,
		Date:   date,
		Status: WorkdayStatusNotStarted,
		Events: []Event{},
	}
}

// Apply runs action through the transition table at now. It reports whether
// an event was appended; idempotent actions leave the record untouched.
func (r *WorkdayRecord) Apply(action Action, now time.Time) (bool, error) {
	if action == ActionReset {
		r.Force(now)
		return true, nil
	}
	ev, err := Plan(r.Status, action)
	if err != nil {
		return false, err
	}
	if ev == "" {
		return false, nil
	}
	r.appendEvent(ev, now)
	return true, nil
}

// Force is the recovery path: it bypasses the transition table and always
// appends a RESET event, leaving the day ACTIVE.
func (r *WorkdayRecord) Force(now time.Time) {
	r.appendEvent(EventReset, now)
}

// appendEvent stores instants at millisecond precision, the resolution of a
// BSON datetime, so the cached totals match a replay of the persisted log.
func (r *WorkdayRecord) appendEvent(ev EventType, now time.Time) {
	at := now.Truncate(time.Millisecond)
	if n := len(r.Events); n > 0 && at.Before(r.Events[n-1].At) {
		at = r.Events[n-1].At
	}
	r.Events = append(r.Events, Event{Type: ev, At: at})
	r.Revision++
	r.setProjection(Replay(r.Events))
}

func (r *WorkdayRecord) setProjection(p Projection) {
	r.Status = p.Status
	r.StartedAt = copyTime(p.StartedAt)
	r.EndedAt = copyTime(p.EndedAt)
	r.PauseStartedAt = p.Open.pauseSince()
	r.LunchStartedAt = p.Open.lunchSince()
	r.TotalPauseMinutes = p.TotalPauseMinutes
	r.TotalLunchMinutes = p.TotalLunchMinutes
}

// StoredProjection reads the cached fields without replaying events.
func (r *WorkdayRecord) StoredProjection() Projection {
	p := Projection{
		Status:            r.Status,
		StartedAt:         copyTime(r.StartedAt),
		EndedAt:           copyTime(r.EndedAt),
		TotalPauseMinutes: r.TotalPauseMinutes,
		TotalLunchMinutes: r.TotalLunchMinutes,
	}
	switch {
	case r.PauseStartedAt != nil:
		p.Open = PauseInterval(*r.PauseStartedAt)
	case r.LunchStartedAt != nil:
		p.Open = LunchInterval(*r.LunchStartedAt)
	}
	if p.Status == "" {
		p.Status = WorkdayStatusNotStarted
	}
	return p
}

// DTO renders the record in its wire shape.
func (r *WorkdayRecord) DTO() *WorkdayDTO {
	return NewWorkdayDTO(r.UserID, r.Date, r.StoredProjection(), r.Events)
}

// Clone returns a deep copy of the record.
func (r *WorkdayRecord) Clone() *WorkdayRecord {
	c := *r
	c.StartedAt = copyTime(r.StartedAt)
	c.EndedAt = copyTime(r.EndedAt)
	c.PauseStartedAt = copyTime(r.PauseStartedAt)
	c.LunchStartedAt = copyTime(r.LunchStartedAt)
	c.Events = append([]Event{}, r.Events...)
	return &c
}

// WorkdayDTO is the externally visible projection of a workday.
type WorkdayDTO struct {
	UserID            string        `json:"userId"`
	DateKey           string        `json:"dateKey"`
	Status            WorkdayStatus `json:"status"`
	StartedAt         *time.Time    `json:"startedAt"`
	EndedAt           *time.Time    `json:"endedAt"`
	PauseStartedAt    *time.Time    `json:"pauseStartedAt"`
	LunchStartedAt    *time.Time    `json:"lunchStartedAt"`
	TotalPauseMinutes int           `json:"totalPauseMinutes"`
	TotalLunchMinutes int           `json:"totalLunchMinutes"`
	Events            []Event       `json:"events"`
}

func NewWorkdayDTO(userID, date string, p Projection, events []Event) *WorkdayDTO {
	dto := &WorkdayDTO{
		UserID:            userID,
		DateKey:           date,
		Status:            p.Status,
		StartedAt:         utc(p.StartedAt),
		EndedAt:           utc(p.EndedAt),
		PauseStartedAt:    utc(p.Open.pauseSince()),
		LunchStartedAt:    utc(p.Open.lunchSince()),
		TotalPauseMinutes: p.TotalPauseMinutes,
		TotalLunchMinutes: p.TotalLunchMinutes,
		Events:            make([]Event, 0, len(events)),
	}
	for _, e := range events {
		dto.Events = append(dto.Events, Event{Type: e.Type, At: e.At.UTC()})
	}
	return dto
}

// NotStartedDTO is the transient view of a day with no stored record.
func NotStartedDTO(userID, date string) *WorkdayDTO {
	return NewWorkdayDTO(userID, date, Projection{Status: WorkdayStatusNotStarted}, nil)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
