package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// exclusion_violation, raised by bookings_no_overlap
const exclusionViolation = "23P01"

const bookingColumns = `
	id, kind, provider_id, department_id, booking_date, start_minute, end_minute,
	status, requester_id, requester_details, shift_type, notes, created_by,
	created_at, updated_at`

type bookingRow struct {
	ID           uuid.UUID      `db:"id"`
	Kind         string         `db:"kind"`
	ProviderID   uuid.UUID      `db:"provider_id"`
	DepartmentID string         `db:"department_id"`
	BookingDate  schedule.Date  `db:"booking_date"`
	StartMinute  int            `db:"start_minute"`
	EndMinute    int            `db:"end_minute"`
	Status       string         `db:"status"`
	RequesterID  string         `db:"requester_id"`
	Requester    sql.NullString `db:"requester_details"`
	ShiftType    string         `db:"shift_type"`
	Notes        string         `db:"notes"`
	CreatedBy    string         `db:"created_by"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row *bookingRow) toModel() (*model.Booking, error) {
	b := &model.Booking{
		Kind:         model.BookingKind(row.Kind),
		ProviderID:   row.ProviderID,
		DepartmentID: row.DepartmentID,
		Date:         row.BookingDate,
		Window:       schedule.Window{Start: schedule.Clock(row.StartMinute), End: schedule.Clock(row.EndMinute)},
		Status:       lifecycle.Status(row.Status),
		RequesterID:  row.RequesterID,
		ShiftType:    row.ShiftType,
		Notes:        row.Notes,
		CreatedBy:    row.CreatedBy,
	}
	b.ID = row.ID
	b.CreatedAt = row.CreatedAt
	b.UpdatedAt = row.UpdatedAt

	if row.Requester.Valid {
		b.Requester = &model.RequesterDetails{}
		if err := b.Requester.Scan(row.Requester.String); err != nil {
			return nil, fmt.Errorf("failed to decode requester details: %w", err)
		}
	}
	return b, nil
}

func activeStatuses() pq.StringArray {
	statuses := lifecycle.ActiveStatuses()
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func lockKey(kind model.BookingKind, providerID uuid.UUID, date schedule.Date) string {
	return fmt.Sprintf("booking:%s:%s:%s", kind, providerID, date)
}

// Allocate serializes writers for the same (kind, provider, date) on a transaction-scoped
// advisory lock, then checks for overlap and inserts. The exclusion constraint catches
// anything that bypasses the lock.
func (r *bookingRepository) Allocate(ctx context.Context, b *model.Booking, evt *model.OutboxEvent) (err error) {
	defer func(start time.Time) { r.observe("booking_allocate", start, err) }(time.Now())

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
			lockKey(b.Kind, b.ProviderID, b.Date)); err != nil {
			return fmt.Errorf("failed to acquire booking lock: %w", err)
		}

		var taken bool
		err := tx.GetContext(ctx, &taken, `
			SELECT EXISTS (
				SELECT 1 FROM bookings
				WHERE kind = $1 AND provider_id = $2 AND booking_date = $3
				AND status = ANY($4)
				AND start_minute < $6 AND $5 < end_minute
			)`,
			b.Kind, b.ProviderID, b.Date, activeStatuses(), int(b.Window.Start), int(b.Window.End),
		)
		if err != nil {
			return fmt.Errorf("failed to check booking overlap: %w", err)
		}
		if taken {
			return repository.ConflictError(b, nil)
		}

		query := `
			INSERT INTO bookings (
				id, kind, provider_id, department_id, booking_date, start_minute, end_minute,
				status, requester_id, requester_details, shift_type, notes, created_by,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`
		_, err = tx.ExecContext(ctx, query,
			b.ID,
			b.Kind,
			b.ProviderID,
			b.DepartmentID,
			b.Date,
			int(b.Window.Start),
			int(b.Window.End),
			b.Status,
			b.RequesterID,
			b.Requester,
			b.ShiftType,
			b.Notes,
			b.CreatedBy,
			b.CreatedAt,
			b.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == exclusionViolation {
				return repository.ConflictError(b, err)
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}

		return insertEvent(ctx, tx, evt)
	})
	return err
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.BookingNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return row.toModel()
}

func (r *bookingRepository) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var conditions []string
	var args []interface{}
	argCount := 1

	if filters != nil {
		if !filters.RangeStart.IsZero() {
			conditions = append(conditions, fmt.Sprintf("booking_date >= $%d", argCount))
			args = append(args, filters.RangeStart)
			argCount++
		}
		if !filters.RangeEnd.IsZero() {
			conditions = append(conditions, fmt.Sprintf("booking_date <= $%d", argCount))
			args = append(args, filters.RangeEnd)
			argCount++
		}
		if filters.ProviderID != uuid.Nil {
			conditions = append(conditions, fmt.Sprintf("provider_id = $%d", argCount))
			args = append(args, filters.ProviderID)
			argCount++
		}
		if filters.Kind != "" {
			conditions = append(conditions, fmt.Sprintf("kind = $%d", argCount))
			args = append(args, filters.Kind)
			argCount++
		}
		if filters.Status != "" {
			conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
			args = append(args, filters.Status)
			argCount++
		}
		if filters.RequesterID != "" {
			conditions = append(conditions, fmt.Sprintf("requester_id = $%d", argCount))
			args = append(args, filters.RequesterID)
			argCount++
		}
		if filters.RequesterEmail != "" {
			conditions = append(conditions, fmt.Sprintf("LOWER(requester_details->>'email') = LOWER($%d)", argCount))
			args = append(args, strings.TrimSpace(filters.RequesterEmail))
			argCount++
		}
		if filters.DepartmentID != "" {
			conditions = append(conditions, fmt.Sprintf("department_id = $%d", argCount))
			args = append(args, filters.DepartmentID)
			argCount++
		}
		if q := strings.TrimSpace(filters.Query); q != "" {
			conditions = append(conditions, fmt.Sprintf(`provider_id IN (
				SELECT p.id FROM providers p
				LEFT JOIN departments d ON d.id = p.department_id
				WHERE p.first_name ILIKE $%[1]d OR p.last_name ILIKE $%[1]d OR d.name ILIKE $%[1]d)`, argCount))
			args = append(args, containsPattern(q))
			argCount++
		}
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY booking_date, start_minute, id"

	return r.selectBookings(ctx, query, args...)
}

// containsPattern escapes LIKE wildcards in q and wraps it for a substring match.
func containsPattern(q string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + escaped + "%"
}

func (r *bookingRepository) ListActive(ctx context.Context, kind model.BookingKind, providerID uuid.UUID, date schedule.Date) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE kind = $1 AND provider_id = $2 AND booking_date = $3 AND status = ANY($4)
		ORDER BY start_minute, id`
	return r.selectBookings(ctx, query, kind, providerID, date, activeStatuses())
}

func (r *bookingRepository) BusyProviders(ctx context.Context, kind model.BookingKind, date schedule.Date, window schedule.Window) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT provider_id FROM bookings
		WHERE kind = $1 AND booking_date = $2 AND status = ANY($3)
		AND start_minute < $5 AND $4 < end_minute`,
		kind, date, activeStatuses(), int(window.Start), int(window.End),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy providers: %w", err)
	}

	busy := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		busy[id] = true
	}
	return busy, nil
}

func (r *bookingRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.Status, evt *model.OutboxEvent) (*model.Booking, error) {
	var updated *model.Booking
	start := time.Now()
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var row bookingRow
		err := tx.GetContext(ctx, &row, `
			UPDATE bookings SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
			RETURNING `+bookingColumns,
			to, time.Now(), id, from,
		)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
				return fmt.Errorf("failed to check booking: %w", err)
			}
			if !exists {
				return repository.BookingNotFound(id)
			}
			return repository.StaleStatus(id, from)
		}
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}

		if updated, err = row.toModel(); err != nil {
			return err
		}
		return insertEvent(ctx, tx, evt)
	})
	r.observe("booking_transition", start, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *bookingRepository) Delete(ctx context.Context, id uuid.UUID, evt *model.OutboxEvent) error {
	start := time.Now()
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.BookingNotFound(id)
		}

		return insertEvent(ctx, tx, evt)
	})
	r.observe("booking_delete", start, err)
	return err
}

func (r *bookingRepository) selectBookings(ctx context.Context, query string, args ...interface{}) ([]*model.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*model.Booking, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}
