package postgres

import (
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type directoryRepository struct {
	BaseRepository
}

type bookingRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewDirectoryRepository(base BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{base}
}

func NewBookingRepository(base BaseRepository) repository.BookingRepository {
	return &bookingRepository{base}
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}
