// Package wizard is the client-side booking workflow: four gated steps driven by a
// single reducer. It never holds a reservation; the server re-checks on submit.
package wizard

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

type Step int

const (
	StepDepartment Step = iota + 1
	StepSchedule
	StepDetails
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepDepartment:
		return "department"
	case StepSchedule:
		return "schedule"
	case StepDetails:
		return "details"
	case StepConfirm:
		return "confirm"
	}
	return "unknown"
}

// Result is the outcome of a step's validation gate.
type Result struct {
	Valid  bool
	Fields map[string]string
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(fields map[string]string) Result {
	return Result{Fields: fields}
}

type DepartmentStep struct {
	DepartmentID string
}

func (d DepartmentStep) Validate() Result {
	if d.DepartmentID == "" {
		return invalid(map[string]string{"department": "please select a department"})
	}
	return valid()
}

type ScheduleStep struct {
	ProviderID uuid.UUID
	Date       schedule.Date
	Window     *schedule.Window
}

// Validate checks the selection against today and the most recently resolved slots.
func (s ScheduleStep) Validate(today schedule.Date, slots []schedule.Window) Result {
	fields := map[string]string{}
	if s.ProviderID == uuid.Nil {
		fields["providerId"] = "please select a provider"
	}
	switch {
	case s.Date.IsZero():
		fields["date"] = "please select a date"
	case s.Date.Before(today):
		fields["date"] = "date cannot be in the past"
	}
	switch {
	case s.Window == nil:
		fields["timeWindow"] = "please select a time"
	case !containsWindow(slots, *s.Window):
		fields["timeWindow"] = "the selected time is no longer offered"
	}
	if len(fields) > 0 {
		return invalid(fields)
	}
	return valid()
}

func containsWindow(slots []schedule.Window, w schedule.Window) bool {
	for _, s := range slots {
		if s == w {
			return true
		}
	}
	return false
}

type DetailsStep struct {
	Details model.RequesterDetails
}

var detailsValidator = validator.New()

func (d DetailsStep) Validate() Result {
	err := detailsValidator.Validate(d.Details)
	if err == nil {
		return valid()
	}
	if appErr, ok := errors.As(err); ok && len(appErr.Fields) > 0 {
		return invalid(appErr.Fields)
	}
	return invalid(map[string]string{"requesterDetails": err.Error()})
}
