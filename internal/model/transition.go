package model

import (
	"errors"
	"fmt"
)

type Action string

const (
	ActionStart     Action = "start"
	ActionSetActive Action = "active"
	ActionPause     Action = "pause"
	ActionLunch     Action = "lunch"
	ActionEnd       Action = "end"
	ActionReset     Action = "reset"
)

var ErrInvalidTransition = errors.New("invalid workday transition")

// TransitionError reports an action that is not allowed from the current status.
type TransitionError struct {
	Action Action
	Status WorkdayStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s workday while %s", e.Action, e.Status)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// transitions maps status -> action -> event. An empty event marks an
// idempotent no-op; a missing entry is an invalid transition.
var transitions = map[WorkdayStatus]map[Action]EventType{
	WorkdayStatusNotStarted: {
		ActionStart: EventStart,
	},
	WorkdayStatusActive: {
		ActionStart:     "",
		ActionSetActive: "",
		ActionPause:     EventPause,
		ActionLunch:     EventLunch,
		ActionEnd:       EventEnd,
	},
	WorkdayStatusPaused: {
		ActionStart:     "",
		ActionSetActive: EventResume,
		ActionPause:     "",
		ActionLunch:     EventLunch,
		ActionEnd:       EventEnd,
	},
	WorkdayStatusLunch: {
		ActionStart:     "",
		ActionSetActive: EventResume,
		ActionPause:     EventPause,
		ActionLunch:     "",
		ActionEnd:       EventEnd,
	},
	WorkdayStatusEnded: {
		ActionStart:     EventReconnect,
		ActionSetActive: EventReconnect,
		ActionEnd:       "",
	},
}

// Plan returns the event an action appends from status, or "" when the
// action is a no-op there. Reset is not part of the table.
func Plan(status WorkdayStatus, action Action) (EventType, error) {
	row, ok := transitions[status]
	if !ok {
		return "", &TransitionError{Action: action, Status: status}
	}
	ev, ok := row[action]
	if !ok {
		return "", &TransitionError{Action: action, Status: status}
	}
	return ev, nil
}

// ParseAction maps an external action name to an Action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionStart, ActionSetActive, ActionPause, ActionLunch, ActionEnd, ActionReset:
		return a, true
	}
	return "", false
}
