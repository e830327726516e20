package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

func TestStatusChangedRoundTripsThroughBrokerEnvelope(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	svc := NewService(func() time.Time { return fixed })

	b := &model.Booking{
		Kind:       model.BookingKindAppointment,
		ProviderID: uuid.New(),
		Date:       schedule.MustParseDate("2030-01-07"),
		Window:     schedule.MustParseRange("10:00-10:30"),
		Status:     lifecycle.StatusConfirmed,
		Requester:  &model.RequesterDetails{FullName: "Ann Lee", Email: "ann@example.com"},
	}
	b.ID = uuid.New()

	evt, err := svc.StatusChanged(b, "pending")
	require.NoError(t, err)
	assert.Equal(t, model.EventBookingStatusChanged, evt.EventType)
	assert.Equal(t, b.ID, evt.AggregateID)
	assert.Equal(t, model.OutboxStatusPending, evt.Status)
	assert.Equal(t, fixed, evt.CreatedAt)

	raw, err := json.Marshal(ToMessage(evt))
	require.NoError(t, err)

	eventType, payload, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.EventBookingStatusChanged, eventType)
	assert.Equal(t, b.ID, payload.BookingID)
	assert.Equal(t, "pending", payload.PreviousStatus)
	assert.Equal(t, "confirmed", payload.Status)
	assert.Equal(t, "10:00", payload.Start)
	assert.Equal(t, "ann@example.com", payload.Requester.Email)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
