package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/pkg/calendar"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type BookingKind string

const (
	BookingKindAppointment BookingKind = "appointment"
	BookingKindShift       BookingKind = "shift"
)

func ParseBookingKind(s string) (BookingKind, error) {
	switch BookingKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", BookingKindAppointment:
		return BookingKindAppointment, nil
	case BookingKindShift:
		return BookingKindShift, nil
	}
	return "", errors.NewBadRequest(fmt.Sprintf("unknown booking kind %q", s), nil)
}

// Flow returns the lifecycle flow records of this kind follow.
func (k BookingKind) Flow() *lifecycle.Flow {
	if k == BookingKindShift {
		return lifecycle.Shift
	}
	return lifecycle.Appointment
}

var ShiftTypes = []string{"Morning", "Afternoon", "Evening", "Night"}

// RequesterDetails is the contact snapshot taken when the booking is made.
type RequesterDetails struct {
	FullName          string `json:"fullName" validate:"required,max=200"`
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone" validate:"required,max=40"`
	Address           string `json:"address,omitempty" validate:"max=500"`
	ReasonForVisit    string `json:"reasonForVisit,omitempty" validate:"max=1000"`
	PreferredLanguage string `json:"preferredLanguage,omitempty" validate:"max=40"`
}

func (r *RequesterDetails) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (r *RequesterDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return fmt.Errorf("unsupported scan type %T for requester details", src)
}

// Booking is an appointment or a shift assignment. Both hold a provider's time window
// on one date.
type Booking struct {
	Base
	Kind         BookingKind       `json:"kind"`
	ProviderID   uuid.UUID         `json:"providerId"`
	DepartmentID string            `json:"departmentId"`
	Date         schedule.Date     `json:"date"`
	Window       schedule.Window   `json:"timeWindow"`
	Status       lifecycle.Status  `json:"status"`
	RequesterID  string            `json:"requesterId,omitempty"`
	Requester    *RequesterDetails `json:"requesterDetails,omitempty"`
	ShiftType    string            `json:"shiftType,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CreatedBy    string            `json:"createdBy,omitempty"`
}

func (b *Booking) OccursOn() schedule.Date {
	return b.Date
}

func (b *Booking) IsActive() bool {
	return lifecycle.IsActive(b.Status)
}

func (b *Booking) Flow() *lifecycle.Flow {
	return b.Kind.Flow()
}

// IsUpcoming reports whether the booking is confirmed and starts after now.
func (b *Booking) IsUpcoming(now time.Time) bool {
	if b.Status != lifecycle.StatusConfirmed {
		return false
	}
	today := schedule.DateOf(now)
	if b.Date.After(today) {
		return true
	}
	return b.Date == today && b.Window.Start > schedule.Clock(now.Hour()*60+now.Minute())
}

// Redacted is a copy without the requester's personal data.
func (b *Booking) Redacted() *Booking {
	cp := *b
	cp.RequesterID = ""
	cp.Requester = nil
	cp.Notes = ""
	cp.CreatedBy = ""
	return &cp
}

var _ calendar.Dated = (*Booking)(nil)

type TimeWindowRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type CreateBookingRequest struct {
	Kind             string            `json:"kind,omitempty" validate:"omitempty,oneof=appointment shift"`
	ProviderID       string            `json:"providerId" validate:"required,uuid"`
	Date             string            `json:"date" validate:"required"`
	TimeWindow       TimeWindowRequest `json:"timeWindow"`
	RequesterID      string            `json:"requesterId,omitempty" validate:"max=100"`
	RequesterDetails *RequesterDetails `json:"requesterDetails,omitempty"`
	ShiftType        string            `json:"shiftType,omitempty" validate:"omitempty,oneof=Morning Afternoon Evening Night"`
	Notes            string            `json:"notes,omitempty" validate:"max=1000"`
	CreatedBy        string            `json:"createdBy,omitempty" validate:"max=100"`
}

// AllocateRequest is a parsed CreateBookingRequest.
type AllocateRequest struct {
	Kind        BookingKind
	ProviderID  uuid.UUID
	Date        schedule.Date
	Window      schedule.Window
	RequesterID string
	Requester   *RequesterDetails
	ShiftType   string
	Notes       string
	CreatedBy   string
}

// ToAllocation parses the wire formats. Field-level checks are left to the validator.
func (r *CreateBookingRequest) ToAllocation() (*AllocateRequest, error) {
	kind, err := ParseBookingKind(r.Kind)
	if err != nil {
		return nil, err
	}
	providerID, err := uuid.Parse(r.ProviderID)
	if err != nil {
		return nil, errors.NewBadRequest("invalid provider ID", err)
	}
	date, err := schedule.ParseDate(r.Date)
	if err != nil {
		return nil, errors.NewBadRequest(err.Error(), nil)
	}
	window, err := schedule.ParseWindow(r.TimeWindow.Start, r.TimeWindow.End)
	if err != nil {
		return nil, errors.NewBadRequest(err.Error(), nil)
	}

	return &AllocateRequest{
		Kind:        kind,
		ProviderID:  providerID,
		Date:        date,
		Window:      window,
		RequesterID: r.RequesterID,
		Requester:   r.RequesterDetails,
		ShiftType:   r.ShiftType,
		Notes:       r.Notes,
		CreatedBy:   r.CreatedBy,
	}, nil
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// BookingFilters narrows a booking listing. Zero values mean "any".
type BookingFilters struct {
	RangeStart     schedule.Date
	RangeEnd       schedule.Date
	ProviderID     uuid.UUID
	Kind           BookingKind
	Status         lifecycle.Status
	RequesterID    string
	RequesterEmail string
	DepartmentID   string
	// Query is a case-insensitive substring of the provider's first or last name or
	// the department name.
	Query string
	// Upcoming keeps only upcoming bookings when true and only the rest when false.
	// It depends on the clock, so stores ignore it.
	Upcoming *bool
}

// IdentifiesRequester reports whether the filters select one person's bookings.
func (f *BookingFilters) IdentifiesRequester() bool {
	return f != nil && (f.RequesterID != "" || f.RequesterEmail != "")
}

// Matches applies the filters in memory.
func (f *BookingFilters) Matches(b *Booking) bool {
	if f == nil {
		return true
	}
	if !f.RangeStart.IsZero() && b.Date.Before(f.RangeStart) {
		return false
	}
	if !f.RangeEnd.IsZero() && b.Date.After(f.RangeEnd) {
		return false
	}
	if f.ProviderID != uuid.Nil && b.ProviderID != f.ProviderID {
		return false
	}
	if f.Kind != "" && b.Kind != f.Kind {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.RequesterID != "" && b.RequesterID != f.RequesterID {
		return false
	}
	if f.RequesterEmail != "" && (b.Requester == nil || !strings.EqualFold(b.Requester.Email, strings.TrimSpace(f.RequesterEmail))) {
		return false
	}
	if f.DepartmentID != "" && b.DepartmentID != f.DepartmentID {
		return false
	}
	return true
}

// MatchesName applies Query against the booking's provider and department.
func (f *BookingFilters) MatchesName(p *Provider, d *Department) bool {
	if f == nil || strings.TrimSpace(f.Query) == "" {
		return true
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if p != nil && (strings.Contains(strings.ToLower(p.FirstName), q) || strings.Contains(strings.ToLower(p.LastName), q)) {
		return true
	}
	return d != nil && strings.Contains(strings.ToLower(d.Name), q)
}

// BookingSummary counts a listing the way the requester's history page shows it.
type BookingSummary struct {
	Total    int                      `json:"total"`
	Upcoming int                      `json:"upcoming"`
	Past     int                      `json:"past"`
	ByStatus map[lifecycle.Status]int `json:"byStatus"`
}

type CalendarDay struct {
	calendar.Cell
	Bookings []*Booking `json:"bookings"`
}

type CalendarMonth struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}
