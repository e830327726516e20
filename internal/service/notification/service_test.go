package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*model.Notification
	err  error
}

func (f *fakeSender) Send(ctx context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) Sent() []*model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Notification(nil), f.sent...)
}

type fixture struct {
	sender   *fakeSender
	svc      *Service
	events   *event.Service
	booking  *model.Booking
	provider *model.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	provider := &model.Provider{FirstName: "Sarah", LastName: "Johnson", DepartmentID: "cardiology", IsActive: true}
	require.NoError(t, store.UpsertProvider(context.Background(), provider))

	b := &model.Booking{
		Kind:       model.BookingKindAppointment,
		ProviderID: provider.ID,
		Date:       schedule.MustParseDate("2030-01-07"),
		Window:     schedule.MustParseRange("10:30-11:00"),
		Status:     lifecycle.StatusPending,
		Requester: &model.RequesterDetails{
			FullName: "Ann Lee", Email: "ann@example.com", Phone: "555-0100", ReasonForVisit: "Checkup",
		},
	}
	b.ID = uuid.New()

	sender := &fakeSender{}
	return &fixture{
		sender:   sender,
		svc:      NewService(sender, store, metrics.New("test"), logger.Nop()),
		events:   event.NewService(time.Now),
		booking:  b,
		provider: provider,
	}
}

func (f *fixture) message(t *testing.T, evt *model.OutboxEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(event.ToMessage(evt))
	require.NoError(t, err)
	return raw
}

func TestHandleCreatedSendsAcknowledgement(t *testing.T) {
	f := newFixture(t)
	evt, err := f.events.BookingCreated(f.booking)
	require.NoError(t, err)

	require.NoError(t, f.svc.Handle(context.Background(), f.message(t, evt)))

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ann@example.com", sent[0].To)
	assert.Equal(t, "Appointment request received", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Sarah Johnson")
	assert.Contains(t, sent[0].Body, "2030-01-07")
	assert.Contains(t, sent[0].Body, "10:30 - 11:00")
	assert.Contains(t, sent[0].Body, "Checkup")
}

func TestHandleStatusChanges(t *testing.T) {
	tests := []struct {
		status  lifecycle.Status
		subject string
	}{
		{lifecycle.StatusConfirmed, "Appointment confirmed"},
		{lifecycle.StatusCancelled, "Appointment cancelled"},
		{lifecycle.StatusCompleted, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			f.booking.Status = tt.status
			evt, err := f.events.StatusChanged(f.booking, "pending")
			require.NoError(t, err)

			require.NoError(t, f.svc.Handle(context.Background(), f.message(t, evt)))

			sent := f.sender.Sent()
			if tt.subject == "" {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, tt.subject, sent[0].Subject)
		})
	}
}

func TestHandleSkipsShifts(t *testing.T) {
	f := newFixture(t)
	f.booking.Kind = model.BookingKindShift
	f.booking.Requester = nil
	evt, err := f.events.BookingCreated(f.booking)
	require.NoError(t, err)

	require.NoError(t, f.svc.Handle(context.Background(), f.message(t, evt)))
	assert.Empty(t, f.sender.Sent())
}

func TestHandleDedupesRedelivery(t *testing.T) {
	f := newFixture(t)
	evt, err := f.events.BookingCreated(f.booking)
	require.NoError(t, err)
	raw := f.message(t, evt)

	require.NoError(t, f.svc.Handle(context.Background(), raw))
	require.NoError(t, f.svc.Handle(context.Background(), raw))
	assert.Len(t, f.sender.Sent(), 1)
}

func TestHandleRetriesAfterSendFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	evt, err := f.events.BookingCreated(f.booking)
	require.NoError(t, err)
	raw := f.message(t, evt)

	assert.Error(t, f.svc.Handle(context.Background(), raw))

	f.sender.mu.Lock()
	f.sender.err = nil
	f.sender.mu.Unlock()
	require.NoError(t, f.svc.Handle(context.Background(), raw))
	assert.Len(t, f.sender.Sent(), 1)
}

func TestHandleRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.svc.Handle(context.Background(), []byte("not json")))
}

func TestListenConsumesBroker(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := messaging.NewMemoryBroker()
	require.NoError(t, f.svc.Listen(ctx, messaging.NewBrokerAdapter(broker, nil), "scheduling.bookings"))

	evt, err := f.events.BookingCreated(f.booking)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "scheduling.bookings", event.ToMessage(evt)))

	require.Eventually(t, func() bool { return len(f.sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)
}
