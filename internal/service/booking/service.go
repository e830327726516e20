// Package booking is the write path for appointments and shifts: conflict-safe
// allocation, lifecycle transitions and hard deletes.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/pkg/calendar"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type Service struct {
	bookings  repository.BookingRepository
	directory repository.DirectoryRepository
	resolver  *availability.Service
	events    *event.Service
	auditor   *audit.Service
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	bookings repository.BookingRepository,
	directory repository.DirectoryRepository,
	resolver *availability.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
	l *logger.Logger,
) *Service {
	if l == nil {
		l = logger.Nop()
	}
	if auditor == nil {
		auditor = audit.NewService(nil)
	}
	return &Service{
		bookings:  bookings,
		directory: directory,
		resolver:  resolver,
		events:    event.NewService(time.Now),
		auditor:   auditor,
		metrics:   m,
		logger:    l.With("component", "booking"),
		now:       time.Now,
	}
}

// SetClock replaces the wall clock used for past-date checks and event timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.events = event.NewService(now)
}

// Today is the facility-local calendar date.
func (s *Service) Today() schedule.Date {
	return schedule.DateOf(s.now())
}

// Allocate re-validates the request against the provider's catalog and commits it only
// if no active booking overlaps. A lost race yields a conflict error.
func (s *Service) Allocate(ctx context.Context, req *model.AllocateRequest) (*model.Booking, error) {
	provider, err := s.directory.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req, provider); err != nil {
		return nil, err
	}

	b := &model.Booking{
		Kind:         req.Kind,
		ProviderID:   provider.ID,
		DepartmentID: provider.DepartmentID,
		Date:         req.Date,
		Window:       req.Window,
		Status:       req.Kind.Flow().Initial(),
		RequesterID:  req.RequesterID,
		Requester:    req.Requester,
		ShiftType:    req.ShiftType,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	}
	b.ID = uuid.New()

	evt, err := s.events.BookingCreated(b)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := s.bookings.Allocate(ctx, b, evt); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			s.countConflict(b.Kind)
			s.auditor.Log(ctx, model.AuditEntry{
				Action:     model.AuditActionConflict,
				EntityType: model.AuditEntityBooking,
				EntityID:   b.ID,
				Actor:      req.CreatedBy,
				Changes:    map[string]interface{}{"providerId": b.ProviderID.String(), "date": b.Date.String(), "window": b.Window.String()},
			})
			s.logger.Info("allocation conflict",
				"providerId", b.ProviderID.String(), "date", b.Date.String(), "window", b.Window.String())
		}
		return nil, err
	}

	s.invalidate(b.ProviderID, b.Date)
	if s.metrics != nil {
		s.metrics.BookingsAllocated.WithLabelValues(string(b.Kind)).Inc()
	}
	s.auditor.Log(ctx, model.AuditEntry{
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityBooking,
		EntityID:   b.ID,
		Actor:      req.CreatedBy,
		Changes: map[string]interface{}{
			"kind": b.Kind, "providerId": b.ProviderID.String(), "date": b.Date.String(), "window": b.Window.String(),
		},
	})
	s.logger.Info("booking created", "bookingId", b.ID.String(), "kind", string(b.Kind))
	return b, nil
}

func (s *Service) validate(req *model.AllocateRequest, provider *model.Provider) error {
	fields := map[string]string{}

	if !provider.IsActive {
		return errors.NewBadRequest(fmt.Sprintf("%s is not accepting bookings", provider.FullName()), nil)
	}
	if req.Date.Before(s.Today()) {
		fields["date"] = "date cannot be in the past"
	}
	if err := req.Window.Validate(); err != nil {
		fields["timeWindow"] = err.Error()
	} else {
		exact := req.Kind == model.BookingKindAppointment && provider.SlotMinutes > 0
		if !provider.Catalog().Offers(req.Date, req.Window, exact) {
			fields["timeWindow"] = fmt.Sprintf("%s is not offered by %s on %s", req.Window, provider.FullName(), req.Date)
		}
	}

	switch req.Kind {
	case model.BookingKindAppointment:
		if req.Requester == nil {
			fields["requesterDetails"] = "requesterDetails is required"
		}
	case model.BookingKindShift:
		if req.ShiftType != "" && !validShiftType(req.ShiftType) {
			fields["shiftType"] = fmt.Sprintf("unknown shift type %q", req.ShiftType)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	var first string
	for _, key := range []string{"date", "timeWindow", "requesterDetails", "shiftType"} {
		if msg, ok := fields[key]; ok {
			first = msg
			break
		}
	}
	return errors.Validation(first, fields)
}

func validShiftType(t string) bool {
	for _, st := range model.ShiftTypes {
		if st == t {
			return true
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.bookings.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	if filters != nil && !filters.RangeStart.IsZero() && !filters.RangeEnd.IsZero() && filters.RangeEnd.Before(filters.RangeStart) {
		return nil, errors.Validation("rangeEnd must not be before rangeStart", map[string]string{
			"rangeEnd": "rangeEnd must not be before rangeStart",
		})
	}
	if filters == nil || filters.Upcoming == nil {
		bookings, err := s.bookings.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		if bookings == nil {
			bookings = []*model.Booking{}
		}
		return bookings, nil
	}

	want := *filters.Upcoming
	narrowed := *filters
	narrowed.Upcoming = nil
	if want {
		// Upcoming bookings are confirmed and not in the past, so the store can do most
		// of the work.
		if narrowed.Status != "" && narrowed.Status != lifecycle.StatusConfirmed {
			return []*model.Booking{}, nil
		}
		narrowed.Status = lifecycle.StatusConfirmed
		if today := s.Today(); narrowed.RangeStart.IsZero() || narrowed.RangeStart.Before(today) {
			narrowed.RangeStart = today
		}
	}
	bookings, err := s.bookings.List(ctx, &narrowed)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := []*model.Booking{}
	for _, b := range bookings {
		if b.IsUpcoming(now) == want {
			out = append(out, b)
		}
	}
	return out, nil
}

// Summary counts the matching bookings by status and splits them into upcoming and
// past. The Upcoming filter is ignored.
func (s *Service) Summary(ctx context.Context, filters *model.BookingFilters) (*model.BookingSummary, error) {
	var all model.BookingFilters
	if filters != nil {
		all = *filters
	}
	all.Upcoming = nil
	bookings, err := s.List(ctx, &all)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &model.BookingSummary{Total: len(bookings), ByStatus: map[lifecycle.Status]int{}}
	for _, b := range bookings {
		summary.ByStatus[b.Status]++
		if b.IsUpcoming(now) {
			summary.Upcoming++
		} else {
			summary.Past++
		}
	}
	return summary, nil
}

// UpdateStatus moves a booking to the requested status, if the lifecycle allows it.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, actor string) (*model.Booking, error) {
	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := current.Flow().ParseStatus(status)
	if err != nil {
		return nil, err
	}
	action, err := current.Flow().ActionFor(target)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, current, action, actor)
}

// Transition applies an explicit lifecycle action such as confirm or cancel.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action lifecycle.Action, actor string) (*model.Booking, error) {
	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, current, action, actor)
}

func (s *Service) apply(ctx context.Context, current *model.Booking, action lifecycle.Action, actor string) (*model.Booking, error) {
	flow := current.Flow()
	from := current.Status
	to, err := flow.Transition(from, action)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Status = to
	evt, err := s.events.StatusChanged(&next, string(from))
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	updated, err := s.bookings.TransitionStatus(ctx, current.ID, from, to, evt)
	if err != nil {
		return nil, err
	}

	s.invalidate(updated.ProviderID, updated.Date)
	if s.metrics != nil {
		s.metrics.LifecycleTransitions.WithLabelValues(string(updated.Kind), string(from), string(to)).Inc()
	}
	s.auditor.Log(ctx, model.AuditEntry{
		Action:     model.AuditActionStatusChange,
		EntityType: model.AuditEntityBooking,
		EntityID:   updated.ID,
		Actor:      actor,
		Changes:    map[string]interface{}{"from": string(from), "to": string(to), "action": string(action)},
	})
	s.logger.Info("booking status changed",
		"bookingId", updated.ID.String(), "from", string(from), "to", string(to))
	return updated, nil
}

// Delete removes the booking permanently. The audit record is written first since the
// row itself is gone afterwards.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return err
	}

	evt, err := s.events.BookingDeleted(current)
	if err != nil {
		return errors.NewInternal(err)
	}

	s.auditor.Log(ctx, model.AuditEntry{
		Action:     model.AuditActionDelete,
		EntityType: model.AuditEntityBooking,
		EntityID:   current.ID,
		Actor:      actor,
		Changes: map[string]interface{}{
			"kind": current.Kind, "status": string(current.Status),
			"providerId": current.ProviderID.String(), "date": current.Date.String(), "window": current.Window.String(),
		},
	})

	if err := s.bookings.Delete(ctx, id, evt); err != nil {
		return err
	}

	s.invalidate(current.ProviderID, current.Date)
	if s.metrics != nil {
		s.metrics.BookingsDeleted.WithLabelValues(string(current.Kind)).Inc()
	}
	s.logger.Info("booking deleted", "bookingId", id.String())
	return nil
}

// Calendar lays out a Sunday-first month grid with every matching booking placed on
// its cell. Adjacent-month cells carry their own bookings too.
func (s *Service) Calendar(ctx context.Context, year int, month time.Month, filters model.BookingFilters) (*model.CalendarMonth, error) {
	if month < time.January || month > time.December {
		return nil, errors.Validation("month must be between 1 and 12", map[string]string{"month": "month must be between 1 and 12"})
	}

	filters.RangeStart, filters.RangeEnd = calendar.GridRange(year, month)
	bookings, err := s.bookings.List(ctx, &filters)
	if err != nil {
		return nil, err
	}
	byDate := calendar.BucketByDate(bookings)

	cells := calendar.BuildMonthGrid(year, month, s.Today())
	out := &model.CalendarMonth{Year: year, Month: int(month), Days: make([]model.CalendarDay, len(cells))}
	for i, cell := range cells {
		day := byDate[cell.Date]
		if day == nil {
			day = []*model.Booking{}
		}
		out.Days[i] = model.CalendarDay{Cell: cell, Bookings: day}
	}
	return out, nil
}

func (s *Service) invalidate(providerID uuid.UUID, date schedule.Date) {
	if s.resolver != nil {
		s.resolver.Invalidate(providerID, date)
	}
}

func (s *Service) countConflict(kind model.BookingKind) {
	if s.metrics != nil {
		s.metrics.AllocationConflicts.WithLabelValues(string(kind)).Inc()
	}
}
