package wizard

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

var (
	today    = schedule.MustParseDate("2030-01-06")
	monday   = schedule.MustParseDate("2030-01-07")
	doctorID = uuid.MustParse("6f1c1f36-0000-4000-8000-000000001a01")
	details  = model.RequesterDetails{FullName: "Ann Lee", Email: "ann@example.com", Phone: "555-0100"}
)

type fakeBackend struct {
	slots       []schedule.Window
	slotsErr    error
	createErr   []error
	slotCalls   int
	createCalls int
	lastRequest *model.CreateBookingRequest
}

func (f *fakeBackend) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	return []*model.Department{{ID: "cardiology", Name: "Cardiology"}}, nil
}

func (f *fakeBackend) ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error) {
	p := &model.Provider{FirstName: "Sarah", LastName: "Johnson", DepartmentID: departmentID, IsActive: true}
	p.ID = doctorID
	return []*model.Provider{p}, nil
}

func (f *fakeBackend) ResolveSlots(ctx context.Context, providerID uuid.UUID, date schedule.Date) ([]schedule.Window, error) {
	f.slotCalls++
	return f.slots, f.slotsErr
}

func (f *fakeBackend) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	f.createCalls++
	f.lastRequest = req
	if len(f.createErr) > 0 {
		err := f.createErr[0]
		f.createErr = f.createErr[1:]
		return nil, err
	}
	b := &model.Booking{Kind: model.BookingKindAppointment, ProviderID: doctorID, Status: lifecycle.StatusPending}
	b.ID = uuid.New()
	return b, nil
}

func mondaySlots() []schedule.Window {
	return []schedule.Window{
		schedule.MustParseRange("09:00-09:30"),
		schedule.MustParseRange("09:30-10:00"),
		schedule.MustParseRange("10:30-11:00"),
	}
}

// fill drives a wizard to the confirm step.
func fill(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()
	w.Dispatch(ctx, SelectDepartment{DepartmentID: "cardiology"})
	w.Dispatch(ctx, Next{})
	w.Dispatch(ctx, SelectProvider{ProviderID: doctorID})
	w.Dispatch(ctx, SelectDate{Date: monday})
	w.Dispatch(ctx, SelectWindow{Window: schedule.MustParseRange("10:30-11:00")})
	w.Dispatch(ctx, Next{})
	w.Dispatch(ctx, UpdateDetails{Details: details})
	s := w.Dispatch(ctx, Next{})
	require.Equal(t, StepConfirm, s.Step, "field errors: %v", s.FieldErrors)
}

func TestWizardHappyPath(t *testing.T) {
	backend := &fakeBackend{slots: mondaySlots()}
	w := New(backend, today)

	s := w.Start(context.Background())
	require.Len(t, s.Departments, 1)

	fill(t, w)
	s = w.Dispatch(context.Background(), Submit{})

	require.NotNil(t, s.Confirmation)
	assert.False(t, s.Submitting)
	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, doctorID.String(), backend.lastRequest.ProviderID)
	assert.Equal(t, "2030-01-07", backend.lastRequest.Date)
	assert.Equal(t, model.TimeWindowRequest{Start: "10:30", End: "11:00"}, backend.lastRequest.TimeWindow)
	assert.Equal(t, "ann@example.com", backend.lastRequest.RequesterDetails.Email)

	w.Dispatch(context.Background(), Submit{})
	assert.Equal(t, 1, backend.createCalls, "a confirmed wizard does not submit twice")
}

func TestWizardConflictReturnsToSchedule(t *testing.T) {
	backend := &fakeBackend{
		slots:     mondaySlots(),
		createErr: []error{errors.NewConflict("slot taken", nil)},
	}
	w := New(backend, today)
	fill(t, w)
	before := backend.slotCalls

	s := w.Dispatch(context.Background(), Submit{})

	assert.Equal(t, StepSchedule, s.Step)
	assert.Nil(t, s.Schedule.Window)
	assert.Equal(t, conflictMessage, s.Message)
	assert.Equal(t, before+1, backend.slotCalls, "slots are re-resolved")
	assert.Equal(t, LoadDone, s.SlotsLoad)
	assert.Equal(t, details, s.Details.Details, "entered details survive")
	assert.Equal(t, doctorID, s.Schedule.ProviderID)
	assert.Nil(t, s.Confirmation)
}

func TestWizardRetryableErrorsKeepData(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"network", errors.NewNetwork(stderrors.New("connection refused")), "network"},
		{"timeout", errors.NewTimeout(stderrors.New("deadline")), "timeout"},
		{"validation", errors.Validation("date cannot be in the past", map[string]string{"date": "date cannot be in the past"}), "validation"},
		{"plain error", stderrors.New("boom"), "network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{slots: mondaySlots(), createErr: []error{tt.err}}
			w := New(backend, today)
			fill(t, w)

			s := w.Dispatch(context.Background(), Submit{})
			assert.Equal(t, StepConfirm, s.Step)
			require.NotNil(t, s.Notice)
			assert.Equal(t, tt.kind, s.Notice.Kind)
			assert.True(t, s.Notice.Retryable)
			assert.Equal(t, details, s.Details.Details)
			require.NotNil(t, s.Schedule.Window)

			s = w.Dispatch(context.Background(), Submit{})
			assert.NotNil(t, s.Confirmation)
			assert.Nil(t, s.Notice)
		})
	}
}

func TestWizardStateErrorIsNotRetryable(t *testing.T) {
	backend := &fakeBackend{slots: mondaySlots(), createErr: []error{errors.NewState("no", nil)}}
	w := New(backend, today)
	fill(t, w)

	s := w.Dispatch(context.Background(), Submit{})
	require.NotNil(t, s.Notice)
	assert.False(t, s.Notice.Retryable)
}

func TestReduceGatesEachStep(t *testing.T) {
	s := NewState(today)

	s, _ = Reduce(s, Next{})
	assert.Equal(t, StepDepartment, s.Step)
	assert.Contains(t, s.FieldErrors, "department")

	s, eff := Reduce(s, SelectDepartment{DepartmentID: "cardiology"})
	assert.Equal(t, LoadProviders{DepartmentID: "cardiology"}, eff)
	s, _ = Reduce(s, Next{})
	require.Equal(t, StepSchedule, s.Step)

	s, _ = Reduce(s, Next{})
	assert.Equal(t, StepSchedule, s.Step)
	assert.Contains(t, s.FieldErrors, "providerId")
	assert.Contains(t, s.FieldErrors, "date")
	assert.Contains(t, s.FieldErrors, "timeWindow")

	s, _ = Reduce(s, SelectProvider{ProviderID: doctorID})
	s, _ = Reduce(s, SelectDate{Date: monday})
	s, _ = Reduce(s, SlotsLoaded{ProviderID: doctorID, Date: monday, Slots: mondaySlots()})
	s, _ = Reduce(s, SelectWindow{Window: schedule.MustParseRange("10:00-10:30")})
	s, _ = Reduce(s, Next{})
	assert.Equal(t, StepSchedule, s.Step, "window must come from the resolved slots")
	assert.Contains(t, s.FieldErrors, "timeWindow")

	s, _ = Reduce(s, SelectWindow{Window: schedule.MustParseRange("09:00-09:30")})
	s, _ = Reduce(s, Next{})
	require.Equal(t, StepDetails, s.Step)

	s, _ = Reduce(s, UpdateDetails{Details: model.RequesterDetails{FullName: "Ann", Email: "not-an-email"}})
	s, _ = Reduce(s, Next{})
	assert.Equal(t, StepDetails, s.Step)
	assert.Contains(t, s.FieldErrors, "email")
	assert.Contains(t, s.FieldErrors, "phone")
	assert.NotContains(t, s.FieldErrors, "fullName")
}

func TestReduceDependentResets(t *testing.T) {
	s := NewState(today)
	s, _ = Reduce(s, SelectDepartment{DepartmentID: "cardiology"})
	s, _ = Reduce(s, SelectProvider{ProviderID: doctorID})
	s, eff := Reduce(s, SelectDate{Date: monday})
	assert.Equal(t, LoadSlots{ProviderID: doctorID, Date: monday}, eff)
	assert.Equal(t, LoadPending, s.SlotsLoad)

	s, _ = Reduce(s, SlotsLoaded{ProviderID: doctorID, Date: monday, Slots: mondaySlots()})
	s, _ = Reduce(s, SelectWindow{Window: mondaySlots()[0]})
	require.NotNil(t, s.Schedule.Window)

	s, eff = Reduce(s, SelectDate{Date: monday.AddDays(7)})
	assert.Nil(t, s.Schedule.Window, "changing the date clears the window")
	assert.Nil(t, s.Slots)
	assert.Equal(t, LoadSlots{ProviderID: doctorID, Date: monday.AddDays(7)}, eff)

	// a late answer for the previous date is dropped
	s, _ = Reduce(s, SlotsLoaded{ProviderID: doctorID, Date: monday, Slots: mondaySlots()})
	assert.Nil(t, s.Slots)
	assert.Equal(t, LoadPending, s.SlotsLoad)

	s, eff = Reduce(s, SelectDepartment{DepartmentID: "emergency"})
	assert.Equal(t, uuid.Nil, s.Schedule.ProviderID, "changing department clears the schedule")
	assert.True(t, s.Schedule.Date.IsZero())
	assert.Equal(t, LoadProviders{DepartmentID: "emergency"}, eff)
}

func TestReducePastDateSkipsResolution(t *testing.T) {
	s := NewState(today)
	s, _ = Reduce(s, SelectProvider{ProviderID: doctorID})
	s, eff := Reduce(s, SelectDate{Date: today.AddDays(-1)})
	assert.Nil(t, eff)
	assert.Contains(t, s.FieldErrors, "date")
}

func TestReduceEmptySlotsDifferFromFailure(t *testing.T) {
	s := NewState(today)
	s, _ = Reduce(s, SelectProvider{ProviderID: doctorID})
	s, _ = Reduce(s, SelectDate{Date: monday})

	empty, _ := Reduce(s, SlotsLoaded{ProviderID: doctorID, Date: monday})
	assert.Equal(t, LoadDone, empty.SlotsLoad)
	assert.NotNil(t, empty.Slots)
	assert.Empty(t, empty.Slots)
	assert.Nil(t, empty.Notice)

	failed, _ := Reduce(s, SlotsLoaded{ProviderID: doctorID, Date: monday, Err: errors.NewTimeout(nil)})
	assert.Equal(t, LoadFailed, failed.SlotsLoad)
	require.NotNil(t, failed.Notice)
	assert.Equal(t, "timeout", failed.Notice.Kind)
}

func TestBackNeverTriggersEffects(t *testing.T) {
	backend := &fakeBackend{slots: mondaySlots()}
	w := New(backend, today)
	fill(t, w)
	calls := backend.slotCalls

	for i := 0; i < 5; i++ {
		w.Dispatch(context.Background(), Back{})
	}
	s := w.State()
	assert.Equal(t, StepDepartment, s.Step)
	assert.Equal(t, calls, backend.slotCalls)
	assert.Zero(t, backend.createCalls)
	require.NotNil(t, s.Schedule.Window, "going back keeps selections")
}

func TestSubmitRevalidatesEarlierSteps(t *testing.T) {
	backend := &fakeBackend{slots: mondaySlots()}
	w := New(backend, today)
	fill(t, w)

	// jump straight to confirm with details cleared
	w.state.Details = DetailsStep{}
	s := w.Dispatch(context.Background(), Submit{})
	assert.Equal(t, StepDetails, s.Step)
	assert.Zero(t, backend.createCalls)
}

func TestReduceNarrowsProviderList(t *testing.T) {
	provider := func(first, last, dept string, active bool) *model.Provider {
		p := &model.Provider{FirstName: first, LastName: last, DepartmentID: dept, IsActive: active}
		p.ID = uuid.New()
		return p
	}

	s := NewState(today)
	s, _ = Reduce(s, SelectDepartment{DepartmentID: "cardiology"})
	s, _ = Reduce(s, ProvidersLoaded{DepartmentID: "cardiology", Providers: []*model.Provider{
		provider("Sarah", "Johnson", "cardiology", true),
		provider("Emily", "Davis", "emergency", true),
		provider("Ray", "Adams", "cardiology", false),
		provider("Ben", "Clark", "cardiology", true),
	}})

	require.Equal(t, LoadDone, s.ProvidersLoad)
	require.Len(t, s.Providers, 2)
	assert.Equal(t, "Clark", s.Providers[0].LastName)
	assert.Equal(t, "Johnson", s.Providers[1].LastName)
}
