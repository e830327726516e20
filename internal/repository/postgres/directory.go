package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

const providerColumns = `
	id, first_name, last_name, role, specialization, department_id,
	working_days, hours, slot_minutes, is_active, created_at, updated_at`

func (r *directoryRepository) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	var departments []*model.Department
	err := r.db.SelectContext(ctx, &departments, `SELECT id, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}

func (r *directoryRepository) GetDepartment(ctx context.Context, id string) (*model.Department, error) {
	var dept model.Department
	err := r.db.GetContext(ctx, &dept, `SELECT id, name FROM departments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.DepartmentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

func (r *directoryRepository) ListProviders(ctx context.Context, departmentID string) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers`
	var args []interface{}
	if departmentID != "" {
		query += ` WHERE department_id = $1`
		args = append(args, departmentID)
	}
	query += ` ORDER BY last_name, first_name`

	var providers []*model.Provider
	if err := r.db.SelectContext(ctx, &providers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *directoryRepository) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var provider model.Provider
	err := r.db.GetContext(ctx, &provider, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ProviderNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

func (r *directoryRepository) UpsertDepartment(ctx context.Context, dept *model.Department) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO departments (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		dept.ID, dept.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert department: %w", err)
	}
	return nil
}

func (r *directoryRepository) UpsertProvider(ctx context.Context, p *model.Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Touch(time.Now())

	query := `
		INSERT INTO providers (
			id, first_name, last_name, role, specialization, department_id,
			working_days, hours, slot_minutes, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			specialization = EXCLUDED.specialization,
			department_id = EXCLUDED.department_id,
			working_days = EXCLUDED.working_days,
			hours = EXCLUDED.hours,
			slot_minutes = EXCLUDED.slot_minutes,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.FirstName,
		p.LastName,
		p.Role,
		p.Specialization,
		p.DepartmentID,
		p.WorkingDays,
		p.Hours,
		p.SlotMinutes,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

func (r *directoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
