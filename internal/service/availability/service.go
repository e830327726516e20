// Package availability answers read-only questions about free slots and free staff.
// Answers may be served from a short-lived cache; the allocator never relies on them.
package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/roster"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type Service struct {
	directory repository.DirectoryRepository
	bookings  repository.BookingRepository
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewService caches answers for ttl. A ttl of zero disables caching.
func NewService(directory repository.DirectoryRepository, bookings repository.BookingRepository, ttl time.Duration, m *metrics.Metrics, l *logger.Logger) *Service {
	s := &Service{
		directory: directory,
		bookings:  bookings,
		metrics:   m,
		logger:    l,
	}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// StaffQuery selects staff for a shift. A nil Window means the time is not chosen yet.
type StaffQuery struct {
	Date         schedule.Date
	Window       *schedule.Window
	DepartmentID string
}

func (s *Service) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	return s.directory.ListDepartments(ctx)
}

func (s *Service) ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error) {
	if departmentID != "" {
		if _, err := s.directory.GetDepartment(ctx, departmentID); err != nil {
			return nil, err
		}
	}
	providers, err := s.directory.ListProviders(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	return roster.SortByName(roster.FilterActive(providers)), nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	return s.directory.GetProvider(ctx, id)
}

// ResolveSlots returns the provider's free appointment windows on date, in order.
// A day off or a fully booked day yields an empty list.
func (s *Service) ResolveSlots(ctx context.Context, providerID uuid.UUID, date schedule.Date) ([]schedule.Window, error) {
	key := slotsKey(providerID, date)
	if cached, ok := s.get(key); ok {
		return copyWindows(cached.([]schedule.Window)), nil
	}

	provider, err := s.directory.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	free := []schedule.Window{}
	if provider.IsActive {
		active, err := s.bookings.ListActive(ctx, model.BookingKindAppointment, providerID, date)
		if err != nil {
			return nil, err
		}
		busy := make(schedule.Windows, 0, len(active))
		for _, b := range active {
			busy = append(busy, b.Window)
		}
		free = append(free, schedule.Subtract(provider.Catalog().SlotsFor(date), busy)...)
	}

	s.set(key, copyWindows(free))
	return free, nil
}

// ResolveStaff lists active staff of the department. Once the window is known only
// providers without an overlapping shift are kept.
func (s *Service) ResolveStaff(ctx context.Context, q StaffQuery) (*model.StaffResult, error) {
	key := staffKey(q)
	if cached, ok := s.get(key); ok {
		return copyStaff(cached.(*model.StaffResult)), nil
	}

	if q.DepartmentID != "" {
		if _, err := s.directory.GetDepartment(ctx, q.DepartmentID); err != nil {
			return nil, err
		}
	}

	providers, err := s.directory.ListProviders(ctx, q.DepartmentID)
	if err != nil {
		return nil, err
	}
	staff := roster.FilterActive(roster.FilterByDepartment(providers, q.DepartmentID))

	result := &model.StaffResult{Mode: model.StaffModeDepartment}
	if q.Window != nil {
		busy, err := s.bookings.BusyProviders(ctx, model.BookingKindShift, q.Date, *q.Window)
		if err != nil {
			return nil, err
		}
		staff = roster.FilterAvailable(staff, busy)
		result.Mode = model.StaffModeAvailability
	}
	result.Staff = roster.SortByName(staff)

	s.set(key, copyStaff(result))
	return result, nil
}

// Invalidate drops every cached answer a write to (provider, date) can change.
func (s *Service) Invalidate(providerID uuid.UUID, date schedule.Date) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(slotsKey(providerID, date))

	prefix := "staff:" + date.String() + ":"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

func (s *Service) get(key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(key)
	if s.metrics != nil {
		if ok {
			s.metrics.ResolverCacheHits.Inc()
		} else {
			s.metrics.ResolverCacheMisses.Inc()
		}
	}
	return v, ok
}

func (s *Service) set(key string, v interface{}) {
	if s.cache != nil {
		s.cache.SetDefault(key, v)
	}
}

// Cached answers are shared, so callers only ever see copies.
func copyWindows(ws []schedule.Window) []schedule.Window {
	return append([]schedule.Window{}, ws...)
}

func copyStaff(r *model.StaffResult) *model.StaffResult {
	out := &model.StaffResult{Mode: r.Mode, Staff: make([]*model.Provider, len(r.Staff))}
	for i, p := range r.Staff {
		cp := *p
		out.Staff[i] = &cp
	}
	return out
}

func slotsKey(providerID uuid.UUID, date schedule.Date) string {
	return fmt.Sprintf("slots:%s:%s", providerID, date)
}

func staffKey(q StaffQuery) string {
	window := "-"
	if q.Window != nil {
		window = q.Window.String()
	}
	return fmt.Sprintf("staff:%s:%s:%s", q.Date, window, q.DepartmentID)
}
