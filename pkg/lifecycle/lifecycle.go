// Package lifecycle implements the status machine shared by appointments, shift
// schedules and approval workflows:
//
//	initial -> confirmed -> completed
//	any non-terminal -> cancelled
//
// Completed and cancelled are terminal.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionApprove  Action = "approve"
	ActionDecline  Action = "decline"
)

// Flow is one parametrization of the machine: its initial status, display labels
// and action aliases.
type Flow struct {
	name    string
	initial Status
	labels  map[Status]string
	aliases map[Action]Action
}

var (
	Appointment = NewFlow("appointment", StatusPending, nil, nil)
	Shift       = NewFlow("shift", StatusScheduled, nil, nil)
	Approval    = NewFlow("approval", StatusPending,
		map[Status]string{StatusConfirmed: "approved", StatusCancelled: "declined"},
		map[Action]Action{ActionApprove: ActionConfirm, ActionDecline: ActionCancel},
	)
)

func NewFlow(name string, initial Status, labels map[Status]string, aliases map[Action]Action) *Flow {
	if labels == nil {
		labels = map[Status]string{}
	}
	if aliases == nil {
		aliases = map[Action]Action{}
	}
	return &Flow{name: name, initial: initial, labels: labels, aliases: aliases}
}

func (f *Flow) Name() string    { return f.name }
func (f *Flow) Initial() Status { return f.initial }

// Statuses lists every status a record of this flow can hold.
func (f *Flow) Statuses() []Status {
	return []Status{f.initial, StatusConfirmed, StatusCompleted, StatusCancelled}
}

func (f *Flow) Has(s Status) bool {
	for _, known := range f.Statuses() {
		if known == s {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether a record in status s still holds its time window.
func IsActive(s Status) bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that take part in conflict checks.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusScheduled, StatusConfirmed}
}

func (f *Flow) resolve(a Action) Action {
	if target, ok := f.aliases[a]; ok {
		return target
	}
	return a
}

// Transition returns the status reached by applying a to from, or a state error.
func (f *Flow) Transition(from Status, a Action) (Status, error) {
	if !f.Has(from) {
		return from, errors.NewState(fmt.Sprintf("status %q is not part of the %s flow", from, f.name), nil)
	}
	if IsTerminal(from) {
		return from, errors.NewState(fmt.Sprintf("cannot %s: %s is already %s", a, f.name, f.Label(from)), nil)
	}

	switch f.resolve(a) {
	case ActionConfirm:
		if from != f.initial {
			return from, errors.NewState(fmt.Sprintf("cannot %s: %s is %s", a, f.name, f.Label(from)), nil)
		}
		return StatusConfirmed, nil
	case ActionComplete:
		if from != StatusConfirmed {
			return from, errors.NewState(fmt.Sprintf("cannot %s: %s must be %s first", a, f.name, f.Label(StatusConfirmed)), nil)
		}
		return StatusCompleted, nil
	case ActionCancel:
		return StatusCancelled, nil
	default:
		return from, errors.NewBadRequest(fmt.Sprintf("unknown action %q", a), nil)
	}
}

// Allowed lists the actions legal from s, in display order.
func (f *Flow) Allowed(s Status) []Action {
	var out []Action
	for _, a := range []Action{ActionConfirm, ActionComplete, ActionCancel} {
		if _, err := f.Transition(s, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// ActionFor maps a requested target status to the action that reaches it.
func (f *Flow) ActionFor(target Status) (Action, error) {
	switch target {
	case StatusConfirmed:
		return ActionConfirm, nil
	case StatusCompleted:
		return ActionComplete, nil
	case StatusCancelled:
		return ActionCancel, nil
	case f.initial:
		return "", errors.NewState(fmt.Sprintf("a %s cannot be moved back to %s", f.name, f.Label(target)), nil)
	}
	return "", errors.NewBadRequest(fmt.Sprintf("unknown status %q", target), nil)
}

// Label returns the display name of s within this flow.
func (f *Flow) Label(s Status) string {
	if label, ok := f.labels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus accepts either a canonical status or one of the flow's labels, case-insensitively.
func (f *Flow) ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for status, label := range f.labels {
		if label == s {
			return status, nil
		}
	}
	status := Status(s)
	if !f.Has(status) {
		return "", errors.NewBadRequest(fmt.Sprintf("unknown status %q", s), nil)
	}
	return status, nil
}
