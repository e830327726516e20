package model

import (
	"strings"

	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type ProviderRole string

const (
	ProviderRoleDoctor ProviderRole = "doctor"
	ProviderRoleNurse  ProviderRole = "nurse"
	ProviderRoleStaff  ProviderRole = "staff"
)

type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Provider is a doctor or staff member as published by the directory.
type Provider struct {
	Base
	FirstName      string            `db:"first_name" json:"firstName"`
	LastName       string            `db:"last_name" json:"lastName"`
	Role           ProviderRole      `db:"role" json:"role"`
	Specialization string            `db:"specialization" json:"specialization,omitempty"`
	DepartmentID   string            `db:"department_id" json:"departmentId"`
	WorkingDays    schedule.Weekdays `db:"working_days" json:"workingDays"`
	Hours          schedule.Windows  `db:"hours" json:"hours"`
	SlotMinutes    int               `db:"slot_minutes" json:"slotMinutes"`
	IsActive       bool              `db:"is_active" json:"isActive"`
}

func (p *Provider) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Provider) Catalog() schedule.Catalog {
	return schedule.Catalog{
		WorkingDays: p.WorkingDays,
		Hours:       p.Hours,
		SlotMinutes: p.SlotMinutes,
	}
}

const (
	StaffModeDepartment   = "department"
	StaffModeAvailability = "availability"
)

// StaffResult separates "no window chosen yet, showing the whole department" from
// "window known, these are the free staff" so an empty list is never ambiguous.
type StaffResult struct {
	Mode  string      `json:"mode"`
	Staff []*Provider `json:"staff"`
}
