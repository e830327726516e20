// Package memory is a process-local store used by tests and by `serve --store memory`.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// Store implements every repository interface. One mutex guards all state so the
// overlap check and insert of Allocate cannot interleave.
type Store struct {
	mu          sync.RWMutex
	departments map[string]*model.Department
	providers   map[uuid.UUID]*model.Provider
	bookings    map[uuid.UUID]*model.Booking
	outbox      []*model.OutboxEvent
	now         func() time.Time
}

var (
	_ repository.DirectoryRepository = (*Store)(nil)
	_ repository.BookingRepository   = (*Store)(nil)
	_ repository.OutboxRepository    = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		departments: make(map[string]*model.Department),
		providers:   make(map[uuid.UUID]*model.Provider),
		bookings:    make(map[uuid.UUID]*model.Booking),
		now:         time.Now,
	}
}

// SetClock replaces the time source used for timestamps and outbox leases.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Directory

func (s *Store) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Department, 0, len(s.departments))
	for _, d := range s.departments {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (*model.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.departments[id]
	if !ok {
		return nil, repository.DepartmentNotFound(id)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if departmentID != "" && p.DepartmentID != departmentID {
			continue
		}
		out = append(out, copyProvider(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *Store) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, repository.ProviderNotFound(id)
	}
	return copyProvider(p), nil
}

func (s *Store) UpsertDepartment(ctx context.Context, dept *model.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *dept
	s.departments[dept.ID] = &cp
	return nil
}

func (s *Store) UpsertProvider(ctx context.Context, provider *model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	provider.Touch(s.now())
	s.providers[provider.ID] = copyProvider(provider)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Bookings

func (s *Store) Allocate(ctx context.Context, b *model.Booking, evt *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bookings {
		if sameScope(existing, b.Kind, b.ProviderID, b.Date) && existing.IsActive() && existing.Window.Overlaps(b.Window) {
			return repository.ConflictError(b, nil)
		}
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Touch(s.now())
	s.bookings[b.ID] = copyBooking(b)
	s.appendEvent(evt)
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.BookingNotFound(id)
	}
	return copyBooking(b), nil
}

func (s *Store) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Booking
	for _, b := range s.bookings {
		if !filters.Matches(b) {
			continue
		}
		if !filters.MatchesName(s.providers[b.ProviderID], s.departments[b.DepartmentID]) {
			continue
		}
		out = append(out, copyBooking(b))
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) ListActive(ctx context.Context, kind model.BookingKind, providerID uuid.UUID, date schedule.Date) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Booking
	for _, b := range s.bookings {
		if sameScope(b, kind, providerID, date) && b.IsActive() {
			out = append(out, copyBooking(b))
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) BusyProviders(ctx context.Context, kind model.BookingKind, date schedule.Date, window schedule.Window) (map[uuid.UUID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	busy := make(map[uuid.UUID]bool)
	for _, b := range s.bookings {
		if b.Kind == kind && b.Date == date && b.IsActive() && b.Window.Overlaps(window) {
			busy[b.ProviderID] = true
		}
	}
	return busy, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.Status, evt *model.OutboxEvent) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.BookingNotFound(id)
	}
	if b.Status != from {
		return nil, repository.StaleStatus(id, from)
	}

	b.Status = to
	b.Touch(s.now())
	s.appendEvent(evt)
	return copyBooking(b), nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID, evt *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok {
		return repository.BookingNotFound(id)
	}
	delete(s.bookings, id)
	s.appendEvent(evt)
	return nil
}

// Outbox

func (s *Store) appendEvent(evt *model.OutboxEvent) {
	if evt == nil {
		return
	}
	cp := *evt
	s.outbox = append(s.outbox, &cp)
}

func (s *Store) ClaimPendingEvents(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var claimed []*model.OutboxEvent
	for _, evt := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		expired := evt.Status == model.OutboxStatusProcessing && lease > 0 && evt.UpdatedAt.Before(now.Add(-lease))
		if evt.Status != model.OutboxStatusPending && !expired {
			continue
		}
		evt.Status = model.OutboxStatusProcessing
		evt.UpdatedAt = now
		cp := *evt
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt := s.findEvent(id)
	if evt == nil {
		return repository.EventNotFound(id)
	}
	now := s.now()
	evt.Status = model.OutboxStatusProcessed
	evt.ProcessedAt = &now
	evt.UpdatedAt = now
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, message string, retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt := s.findEvent(id)
	if evt == nil {
		return repository.EventNotFound(id)
	}
	evt.Status = model.OutboxStatusFailed
	if retry {
		evt.Status = model.OutboxStatusPending
	}
	evt.ErrorMessage = &message
	evt.RetryCount++
	evt.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	var removed int64
	for _, evt := range s.outbox {
		if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, evt)
	}
	s.outbox = kept
	return removed, nil
}

// Events returns a snapshot of the outbox.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.OutboxEvent, len(s.outbox))
	for i, evt := range s.outbox {
		cp := *evt
		out[i] = &cp
	}
	return out
}

func (s *Store) findEvent(id uuid.UUID) *model.OutboxEvent {
	for _, evt := range s.outbox {
		if evt.ID == id {
			return evt
		}
	}
	return nil
}

func sameScope(b *model.Booking, kind model.BookingKind, providerID uuid.UUID, date schedule.Date) bool {
	return b.Kind == kind && b.ProviderID == providerID && b.Date == date
}

func sortBookings(bookings []*model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Window.Start != b.Window.Start {
			return a.Window.Start < b.Window.Start
		}
		return a.ID.String() < b.ID.String()
	})
}

func copyProvider(p *model.Provider) *model.Provider {
	cp := *p
	cp.WorkingDays = append(schedule.Weekdays(nil), p.WorkingDays...)
	cp.Hours = append(schedule.Windows(nil), p.Hours...)
	return &cp
}

func copyBooking(b *model.Booking) *model.Booking {
	cp := *b
	if b.Requester != nil {
		r := *b.Requester
		cp.Requester = &r
	}
	return &cp
}
