package wizard

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/roster"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// LoadStatus distinguishes "nothing free" from "could not check".
type LoadStatus int

const (
	LoadIdle LoadStatus = iota
	LoadPending
	LoadDone
	LoadFailed
)

const conflictMessage = "That time was just booked by someone else. Please pick another slot."

// Notice is an inline error shown on the current step.
type Notice struct {
	Kind      string
	Message   string
	Retryable bool
}

type State struct {
	Step  Step
	Today schedule.Date

	Department DepartmentStep
	Schedule   ScheduleStep
	Details    DetailsStep

	Departments   []*model.Department
	Providers     []*model.Provider
	ProvidersLoad LoadStatus
	Slots         []schedule.Window
	SlotsLoad     LoadStatus
	FieldErrors   map[string]string
	Notice        *Notice
	Message       string
	Submitting    bool
	Confirmation  *model.Booking
}

func NewState(today schedule.Date) State {
	return State{Step: StepDepartment, Today: today}
}

// Action is one input to Reduce.
type Action interface {
	isAction()
}

type (
	DepartmentsLoaded struct {
		Departments []*model.Department
		Err         error
	}
	SelectDepartment struct{ DepartmentID string }
	ProvidersLoaded  struct {
		DepartmentID string
		Providers    []*model.Provider
		Err          error
	}
	SelectProvider struct{ ProviderID uuid.UUID }
	SelectDate     struct{ Date schedule.Date }
	SlotsLoaded    struct {
		ProviderID uuid.UUID
		Date       schedule.Date
		Slots      []schedule.Window
		Err        error
	}
	SelectWindow    struct{ Window schedule.Window }
	UpdateDetails   struct{ Details model.RequesterDetails }
	Next            struct{}
	Back            struct{}
	Submit          struct{}
	SubmitSucceeded struct{ Booking *model.Booking }
	SubmitFailed    struct{ Err error }
)

func (DepartmentsLoaded) isAction() {}
func (SelectDepartment) isAction()  {}
func (ProvidersLoaded) isAction()   {}
func (SelectProvider) isAction()    {}
func (SelectDate) isAction()        {}
func (SlotsLoaded) isAction()       {}
func (SelectWindow) isAction()      {}
func (UpdateDetails) isAction()     {}
func (Next) isAction()              {}
func (Back) isAction()              {}
func (Submit) isAction()            {}
func (SubmitSucceeded) isAction()   {}
func (SubmitFailed) isAction()      {}

// Effect is I/O the driver must perform after a reduction.
type Effect interface {
	isEffect()
}

type (
	LoadProviders struct{ DepartmentID string }
	LoadSlots     struct {
		ProviderID uuid.UUID
		Date       schedule.Date
	}
	CreateBooking struct{ Request *model.CreateBookingRequest }
)

func (LoadProviders) isEffect() {}
func (LoadSlots) isEffect()     {}
func (CreateBooking) isEffect() {}

// Reduce is the only place wizard state changes. Dependent fields are reset here:
// a new department clears the schedule, a new provider or date clears the window.
func Reduce(s State, a Action) (State, Effect) {
	switch a := a.(type) {
	case DepartmentsLoaded:
		if a.Err != nil {
			s.Notice = noticeFor(a.Err)
			return s, nil
		}
		s.Departments = a.Departments
		return s, nil

	case SelectDepartment:
		if a.DepartmentID == s.Department.DepartmentID && s.ProvidersLoad != LoadFailed {
			return s, nil
		}
		s.Department.DepartmentID = a.DepartmentID
		s.Schedule = ScheduleStep{}
		s.Providers, s.ProvidersLoad = nil, LoadIdle
		s.Slots, s.SlotsLoad = nil, LoadIdle
		s.clearErrors()
		if a.DepartmentID == "" {
			return s, nil
		}
		s.ProvidersLoad = LoadPending
		return s, LoadProviders{DepartmentID: a.DepartmentID}

	case ProvidersLoaded:
		if a.DepartmentID != s.Department.DepartmentID {
			return s, nil
		}
		if a.Err != nil {
			s.ProvidersLoad = LoadFailed
			s.Notice = noticeFor(a.Err)
			return s, nil
		}
		providers := roster.FilterActive(roster.FilterByDepartment(a.Providers, a.DepartmentID))
		s.Providers, s.ProvidersLoad = roster.SortByName(providers), LoadDone
		return s, nil

	case SelectProvider:
		s.Schedule.ProviderID = a.ProviderID
		return s.scheduleChanged()

	case SelectDate:
		s.Schedule.Date = a.Date
		return s.scheduleChanged()

	case SlotsLoaded:
		if a.ProviderID != s.Schedule.ProviderID || a.Date != s.Schedule.Date {
			return s, nil
		}
		if a.Err != nil {
			s.Slots, s.SlotsLoad = nil, LoadFailed
			s.Notice = noticeFor(a.Err)
			return s, nil
		}
		s.Slots, s.SlotsLoad = a.Slots, LoadDone
		if s.Slots == nil {
			s.Slots = []schedule.Window{}
		}
		return s, nil

	case SelectWindow:
		w := a.Window
		s.Schedule.Window = &w
		s.FieldErrors = without(s.FieldErrors, "timeWindow")
		s.Message = ""
		return s, nil

	case UpdateDetails:
		s.Details.Details = a.Details
		return s, nil

	case Next:
		if s.Step == StepConfirm {
			return s, nil
		}
		if r := s.gate(s.Step); !r.Valid {
			s.FieldErrors = r.Fields
			return s, nil
		}
		s.clearErrors()
		s.Message = ""
		s.Step++
		return s, nil

	case Back:
		if s.Step > StepDepartment && !s.Submitting {
			s.Step--
			s.clearErrors()
		}
		return s, nil

	case Submit:
		if s.Step != StepConfirm || s.Submitting || s.Confirmation != nil {
			return s, nil
		}
		for step := StepDepartment; step < StepConfirm; step++ {
			if r := s.gate(step); !r.Valid {
				s.Step, s.FieldErrors = step, r.Fields
				return s, nil
			}
		}
		s.clearErrors()
		s.Submitting = true
		return s, CreateBooking{Request: s.request()}

	case SubmitSucceeded:
		s.Submitting = false
		s.Confirmation = a.Booking
		return s, nil

	case SubmitFailed:
		s.Submitting = false
		if errors.Is(a.Err, errors.ErrConflict) {
			s.Step = StepSchedule
			s.Schedule.Window = nil
			s.Message = conflictMessage
			s.SlotsLoad = LoadPending
			return s, LoadSlots{ProviderID: s.Schedule.ProviderID, Date: s.Schedule.Date}
		}
		s.Notice = noticeFor(a.Err)
		if appErr, ok := errors.As(a.Err); ok && len(appErr.Fields) > 0 {
			s.FieldErrors = appErr.Fields
		}
		return s, nil
	}
	return s, nil
}

func (s State) scheduleChanged() (State, Effect) {
	s.Schedule.Window = nil
	s.Slots, s.SlotsLoad = nil, LoadIdle
	s.clearErrors()
	if s.Schedule.ProviderID == uuid.Nil || s.Schedule.Date.IsZero() {
		return s, nil
	}
	if s.Schedule.Date.Before(s.Today) {
		s.FieldErrors = map[string]string{"date": "date cannot be in the past"}
		return s, nil
	}
	s.SlotsLoad = LoadPending
	return s, LoadSlots{ProviderID: s.Schedule.ProviderID, Date: s.Schedule.Date}
}

func without(fields map[string]string, key string) map[string]string {
	if _, ok := fields[key]; !ok {
		return fields
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func (s *State) clearErrors() {
	s.FieldErrors = nil
	s.Notice = nil
}

func (s State) gate(step Step) Result {
	switch step {
	case StepDepartment:
		return s.Department.Validate()
	case StepSchedule:
		return s.Schedule.Validate(s.Today, s.Slots)
	case StepDetails:
		return s.Details.Validate()
	}
	return valid()
}

func (s State) request() *model.CreateBookingRequest {
	details := s.Details.Details
	return &model.CreateBookingRequest{
		Kind:       string(model.BookingKindAppointment),
		ProviderID: s.Schedule.ProviderID.String(),
		Date:       s.Schedule.Date.String(),
		TimeWindow: model.TimeWindowRequest{
			Start: s.Schedule.Window.Start.String(),
			End:   s.Schedule.Window.End.String(),
		},
		RequesterDetails: &details,
	}
}

func noticeFor(err error) *Notice {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewNetwork(err)
	}
	msg := appErr.Message
	if appErr.Code == errors.ErrNotFound {
		msg += "; please refresh and try again"
	}
	return &Notice{
		Kind:      appErr.Kind(),
		Message:   msg,
		Retryable: appErr.Code == errors.ErrBadRequest || errors.Retryable(appErr),
	}
}
