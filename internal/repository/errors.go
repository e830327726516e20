package repository

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
)

// Shared error values so every store reports the same kinds and messages.

func ConflictError(b *model.Booking, err error) error {
	return errors.NewConflict(
		fmt.Sprintf("%s %s-%s on %s is no longer available",
			b.Kind, b.Window.Start, b.Window.End, b.Date), err)
}

func BookingNotFound(id uuid.UUID) error {
	return errors.NewNotFound(fmt.Sprintf("booking %s", id), nil)
}

func ProviderNotFound(id uuid.UUID) error {
	return errors.NewNotFound(fmt.Sprintf("provider %s", id), nil)
}

func DepartmentNotFound(id string) error {
	return errors.NewNotFound(fmt.Sprintf("department %s", id), nil)
}

func StaleStatus(id uuid.UUID, expected lifecycle.Status) error {
	return errors.NewState(fmt.Sprintf("booking %s is no longer %s", id, expected), nil)
}

func EventNotFound(id uuid.UUID) error {
	return errors.NewNotFound(fmt.Sprintf("outbox event %s", id), nil)
}
