package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// All repository interfaces in one file
type (
	// DirectoryRepository mirrors the departments and providers published by the directory.
	DirectoryRepository interface {
		ListDepartments(ctx context.Context) ([]*model.Department, error)
		GetDepartment(ctx context.Context, id string) (*model.Department, error)
		ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error)
		GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		UpsertDepartment(ctx context.Context, dept *model.Department) error
		UpsertProvider(ctx context.Context, provider *model.Provider) error
		Ping(ctx context.Context) error
	}

	// BookingRepository is the authoritative store for appointments and shifts.
	//
	// Allocate inserts b only if no active booking of the same kind, provider and date
	// overlaps its window; otherwise it returns a conflict error. The check and the insert
	// are atomic. Every write also stores evt, when given, in the same transaction.
	BookingRepository interface {
		Allocate(ctx context.Context, b *model.Booking, evt *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error)
		ListActive(ctx context.Context, kind model.BookingKind, providerID uuid.UUID, date schedule.Date) ([]*model.Booking, error)
		BusyProviders(ctx context.Context, kind model.BookingKind, date schedule.Date, window schedule.Window) (map[uuid.UUID]bool, error)
		// TransitionStatus moves the booking from one status to another only if it is
		// still in from. A lost race returns a state error.
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.Status, evt *model.OutboxEvent) (*model.Booking, error)
		Delete(ctx context.Context, id uuid.UUID, evt *model.OutboxEvent) error
	}

	// OutboxRepository hands booking events to the publisher.
	OutboxRepository interface {
		// ClaimPendingEvents marks up to limit pending events as processing and returns them.
		// Events left in processing for longer than lease are claimed again. A lease of
		// zero disables reclaiming. Concurrent callers never receive the same event.
		ClaimPendingEvents(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed records the failure. With retry set the event returns to pending.
		MarkFailed(ctx context.Context, id uuid.UUID, message string, retry bool) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
