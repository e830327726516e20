package wizard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// Backend is the subset of the scheduling API the wizard talks to.
type Backend interface {
	ListDepartments(ctx context.Context) ([]*model.Department, error)
	ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error)
	ResolveSlots(ctx context.Context, providerID uuid.UUID, date schedule.Date) ([]schedule.Window, error)
	CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error)
}

// Wizard runs Reduce against a Backend. It is meant for a single caller at a time.
type Wizard struct {
	backend Backend
	state   State
}

func New(backend Backend, today schedule.Date) *Wizard {
	return &Wizard{backend: backend, state: NewState(today)}
}

func (w *Wizard) State() State {
	return w.state
}

// Start loads the department list for the first step.
func (w *Wizard) Start(ctx context.Context) State {
	departments, err := w.backend.ListDepartments(ctx)
	return w.Dispatch(ctx, DepartmentsLoaded{Departments: departments, Err: err})
}

// Dispatch applies a and performs any resulting effects, feeding their outcomes
// back through the reducer.
func (w *Wizard) Dispatch(ctx context.Context, a Action) State {
	var effect Effect
	w.state, effect = Reduce(w.state, a)
	for effect != nil {
		next := w.run(ctx, effect)
		w.state, effect = Reduce(w.state, next)
	}
	return w.state
}

func (w *Wizard) run(ctx context.Context, e Effect) Action {
	switch e := e.(type) {
	case LoadProviders:
		providers, err := w.backend.ListProviders(ctx, e.DepartmentID)
		return ProvidersLoaded{DepartmentID: e.DepartmentID, Providers: providers, Err: err}
	case LoadSlots:
		slots, err := w.backend.ResolveSlots(ctx, e.ProviderID, e.Date)
		return SlotsLoaded{ProviderID: e.ProviderID, Date: e.Date, Slots: slots, Err: err}
	case CreateBooking:
		b, err := w.backend.CreateBooking(ctx, e.Request)
		if err != nil {
			return SubmitFailed{Err: err}
		}
		return SubmitSucceeded{Booking: b}
	}
	panic(fmt.Sprintf("wizard: unhandled effect %T", e))
}
