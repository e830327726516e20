package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
	EventBookingDeleted       = "booking.deleted"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"eventType"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregateId"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retryCount"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}

// BookingEvent is the payload carried by every booking.* outbox event.
type BookingEvent struct {
	BookingID      uuid.UUID         `json:"bookingId"`
	Kind           BookingKind       `json:"kind"`
	ProviderID     uuid.UUID         `json:"providerId"`
	Date           string            `json:"date"`
	Start          string            `json:"start"`
	End            string            `json:"end"`
	Status         string            `json:"status"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	Requester      *RequesterDetails `json:"requesterDetails,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

func NewBookingEvent(b *Booking, previous string, now time.Time) BookingEvent {
	return BookingEvent{
		BookingID:      b.ID,
		Kind:           b.Kind,
		ProviderID:     b.ProviderID,
		Date:           b.Date.String(),
		Start:          b.Window.Start.String(),
		End:            b.Window.End.String(),
		Status:         string(b.Status),
		PreviousStatus: previous,
		Requester:      b.Requester,
		OccurredAt:     now,
	}
}

// NewOutboxEvent wraps payload in a pending outbox row.
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload interface{}, now time.Time) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     data,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
