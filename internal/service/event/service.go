// Package event builds the outbox events recorded alongside booking writes and decodes
// them on the consuming side.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
)

type Service struct {
	now func() time.Time
}

func NewService(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now}
}

func (s *Service) BookingCreated(b *model.Booking) (*model.OutboxEvent, error) {
	return s.build(model.EventBookingCreated, b, "")
}

func (s *Service) StatusChanged(b *model.Booking, previous string) (*model.OutboxEvent, error) {
	return s.build(model.EventBookingStatusChanged, b, previous)
}

func (s *Service) BookingDeleted(b *model.Booking) (*model.OutboxEvent, error) {
	return s.build(model.EventBookingDeleted, b, string(b.Status))
}

func (s *Service) build(eventType string, b *model.Booking, previous string) (*model.OutboxEvent, error) {
	now := s.now()
	evt, err := model.NewOutboxEvent(eventType, b.ID, model.NewBookingEvent(b, previous, now), now)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return evt, nil
}

// ToMessage wraps an outbox event in the broker envelope.
func ToMessage(evt *model.OutboxEvent) messaging.Message {
	return messaging.Message{
		ID:        evt.ID.String(),
		Type:      evt.EventType,
		Payload:   evt.Payload,
		Timestamp: evt.CreatedAt.Unix(),
	}
}

// Decode reads a broker message back into its type and booking payload.
func Decode(raw []byte) (string, *model.BookingEvent, error) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", nil, fmt.Errorf("failed to decode message: %w", err)
	}

	var payload model.BookingEvent
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return msg.Type, nil, fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}
	return msg.Type, &payload, nil
}
