package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

var (
	ctx      = context.Background()
	monday   = schedule.MustParseDate("2030-01-07")
	doctorID = uuid.New()
)

func booking(window string) *model.Booking {
	return &model.Booking{
		Kind:       model.BookingKindAppointment,
		ProviderID: doctorID,
		Date:       monday,
		Window:     schedule.MustParseRange(window),
		Status:     lifecycle.StatusPending,
	}
}

func event(t *testing.T, b *model.Booking) *model.OutboxEvent {
	evt, err := model.NewOutboxEvent(model.EventBookingCreated, b.ID, model.NewBookingEvent(b, "", time.Now()), time.Now())
	require.NoError(t, err)
	return evt
}

func TestAllocateRejectsOverlap(t *testing.T) {
	s := NewStore()

	first := booking("10:00-10:30")
	require.NoError(t, s.Allocate(ctx, first, event(t, first)))
	assert.NotEqual(t, uuid.Nil, first.ID)

	err := s.Allocate(ctx, booking("10:15-10:45"), nil)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// touching windows do not overlap
	require.NoError(t, s.Allocate(ctx, booking("10:30-11:00"), nil))
	assert.Len(t, s.Events(), 1)
}

func TestAllocateScopesByKindProviderAndDate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Allocate(ctx, booking("09:00-17:00"), nil))

	shift := booking("09:00-17:00")
	shift.Kind = model.BookingKindShift
	shift.Status = lifecycle.StatusScheduled
	assert.NoError(t, s.Allocate(ctx, shift, nil))

	other := booking("09:00-17:00")
	other.ProviderID = uuid.New()
	assert.NoError(t, s.Allocate(ctx, other, nil))

	nextDay := booking("09:00-17:00")
	nextDay.Date = monday.AddDays(1)
	assert.NoError(t, s.Allocate(ctx, nextDay, nil))
}

func TestCancelledBookingFreesWindow(t *testing.T) {
	s := NewStore()
	b := booking("10:00-10:30")
	require.NoError(t, s.Allocate(ctx, b, nil))

	_, err := s.TransitionStatus(ctx, b.ID, lifecycle.StatusPending, lifecycle.StatusCancelled, nil)
	require.NoError(t, err)

	assert.NoError(t, s.Allocate(ctx, booking("10:00-10:30"), nil))
}

func TestConcurrentAllocateHasOneWinner(t *testing.T) {
	s := NewStore()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Allocate(ctx, booking("10:00-10:30"), nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, errors.ErrConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	active, err := s.ListActive(ctx, model.BookingKindAppointment, doctorID, monday)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTransitionStatusIsCompareAndSet(t *testing.T) {
	s := NewStore()
	b := booking("10:00-10:30")
	require.NoError(t, s.Allocate(ctx, b, nil))

	updated, err := s.TransitionStatus(ctx, b.ID, lifecycle.StatusPending, lifecycle.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusConfirmed, updated.Status)

	_, err = s.TransitionStatus(ctx, b.ID, lifecycle.StatusPending, lifecycle.StatusCancelled, nil)
	assert.True(t, errors.Is(err, errors.ErrState))

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusConfirmed, got.Status)
}

func TestDelete(t *testing.T) {
	s := NewStore()
	b := booking("10:00-10:30")
	require.NoError(t, s.Allocate(ctx, b, nil))

	require.NoError(t, s.Delete(ctx, b.ID, nil))
	_, err := s.Get(ctx, b.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, b.ID, nil), errors.ErrNotFound))
}

func TestListFilters(t *testing.T) {
	s := NewStore()
	a := booking("10:00-10:30")
	a.RequesterID = "patient-1"
	require.NoError(t, s.Allocate(ctx, a, nil))
	later := booking("09:00-09:30")
	later.Date = monday.AddDays(7)
	require.NoError(t, s.Allocate(ctx, later, nil))

	all, err := s.List(ctx, &model.BookingFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	mine, err := s.List(ctx, &model.BookingFilters{RequesterID: "patient-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	ranged, err := s.List(ctx, &model.BookingFilters{RangeStart: monday.AddDays(1), RangeEnd: monday.AddDays(7)})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, later.ID, ranged[0].ID)
}

func TestListByRequesterEmailAndName(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.UpsertDepartment(ctx, &model.Department{ID: "cardiology", Name: "Cardiology"}))
	doctor := &model.Provider{Base: model.Base{ID: doctorID}, FirstName: "Sarah", LastName: "Johnson", DepartmentID: "cardiology", IsActive: true}
	require.NoError(t, s.UpsertProvider(ctx, doctor))

	a := booking("10:00-10:30")
	a.DepartmentID = "cardiology"
	a.Requester = &model.RequesterDetails{FullName: "Ann Lee", Email: "Ann@Example.com", Phone: "1"}
	require.NoError(t, s.Allocate(ctx, a, nil))
	other := booking("11:00-11:30")
	other.ProviderID = uuid.New()
	require.NoError(t, s.Allocate(ctx, other, nil))

	byEmail, err := s.List(ctx, &model.BookingFilters{RequesterEmail: " ann@example.com "})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, a.ID, byEmail[0].ID)

	for _, q := range []string{"sarah", "JOHN", "cardio"} {
		found, err := s.List(ctx, &model.BookingFilters{Query: q})
		require.NoError(t, err)
		require.Len(t, found, 1, q)
		assert.Equal(t, a.ID, found[0].ID)
	}

	none, err := s.List(ctx, &model.BookingFilters{Query: "emergency"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBusyProviders(t *testing.T) {
	s := NewStore()
	shift := booking("08:00-16:00")
	shift.Kind = model.BookingKindShift
	shift.Status = lifecycle.StatusScheduled
	require.NoError(t, s.Allocate(ctx, shift, nil))

	busy, err := s.BusyProviders(ctx, model.BookingKindShift, monday, schedule.MustParseRange("15:00-18:00"))
	require.NoError(t, err)
	assert.True(t, busy[doctorID])

	busy, err = s.BusyProviders(ctx, model.BookingKindShift, monday, schedule.MustParseRange("16:00-18:00"))
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestOutboxClaimAndCleanup(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		b := booking("10:00-10:30")
		b.Date = monday.AddDays(i)
		require.NoError(t, s.Allocate(ctx, b, event(t, b)))
	}

	claimed, err := s.ClaimPendingEvents(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	again, err := s.ClaimPendingEvents(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, again, 1, "claimed events are not handed out twice")

	require.NoError(t, s.MarkProcessed(ctx, claimed[0].ID))
	require.NoError(t, s.MarkFailed(ctx, claimed[1].ID, "redis down", true))

	retry, err := s.ClaimPendingEvents(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 1, retry[0].RetryCount)

	removed, err := s.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, s.Events(), 2)
}

func TestOutboxReclaimsExpiredLease(t *testing.T) {
	s := NewStore()
	now := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	b := booking("10:00-10:30")
	require.NoError(t, s.Allocate(ctx, b, event(t, b)))

	claimed, err := s.ClaimPendingEvents(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	now = now.Add(30 * time.Second)
	again, err := s.ClaimPendingEvents(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "lease still held")

	disabled, err := s.ClaimPendingEvents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, disabled)

	now = now.Add(time.Minute)
	again, err = s.ClaimPendingEvents(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)
	assert.Equal(t, model.OutboxStatusProcessing, again[0].Status)
}

func TestDirectory(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.UpsertDepartment(ctx, &model.Department{ID: "cardiology", Name: "Cardiology"}))
	p := &model.Provider{FirstName: "Ann", LastName: "Lee", DepartmentID: "cardiology", IsActive: true}
	require.NoError(t, s.UpsertProvider(ctx, p))

	got, err := s.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", got.FullName())

	list, err := s.ListProviders(ctx, "radiology")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetDepartment(ctx, "radiology")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
