package worker

import (
	"context"
	"errors"
	"sync/atomic"
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

const channel = "scheduling.bookings"

var testConfig = OutboxProcessorConfig{
	BatchSize:     10,
	PollInterval:  10 * time.Millisecond,
	RetryAttempts: 2,
	RetryDelay:    time.Millisecond,
}

type flakyBroker struct {
	messaging.Broker
	failures int32
	calls    int32
}

func (b *flakyBroker) Publish(ctx context.Context, ch string, msg interface{}) error {
	n := atomic.AddInt32(&b.calls, 1)
	if n <= atomic.LoadInt32(&b.failures) {
		return errors.New("broker unavailable")
	}
	return b.Broker.Publish(ctx, ch, msg)
}

// contextBoundStore fails status writes once the caller's context is done, as a
// database driver would.
type contextBoundStore struct {
	*memory.Store
}

func (s contextBoundStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.MarkProcessed(ctx, id)
}

func (s contextBoundStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, retry bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.MarkFailed(ctx, id, message, retry)
}

// interruptingBroker cancels the processor's context during the first publish.
type interruptingBroker struct {
	messaging.Broker
	cancel context.CancelFunc
}

func (b *interruptingBroker) Publish(ctx context.Context, ch string, msg interface{}) error {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
		return ctx.Err()
	}
	return b.Broker.Publish(ctx, ch, msg)
}

func seedBooking(t *testing.T, store *memory.Store, window string) *model.Booking {
	t.Helper()
	b := &model.Booking{
		Kind:       model.BookingKindShift,
		ProviderID: uuid.New(),
		Date:       schedule.MustParseDate("2030-01-07"),
		Window:     schedule.MustParseRange(window),
		Status:     lifecycle.StatusScheduled,
		ShiftType:  "Morning",
	}
	b.ID = uuid.New()
	evt, err := event.NewService(time.Now).BookingCreated(b)
	require.NoError(t, err)
	require.NoError(t, store.Allocate(context.Background(), b, evt))
	return b
}

func TestProcessOncePublishesAndMarksProcessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	broker := messaging.NewMemoryBroker()
	sub, err := broker.Subscribe(ctx, channel)
	require.NoError(t, err)

	first := seedBooking(t, store, "08:00-12:00")
	seedBooking(t, store, "13:00-17:00")

	p := NewOutboxProcessor(store, broker, channel, testConfig, logger.Nop(), metrics.New("test"))
	delivered, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	raw := <-sub
	eventType, payload, err := event.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, model.EventBookingCreated, eventType)
	assert.Equal(t, first.ID, payload.BookingID)

	for _, evt := range store.Events() {
		assert.Equal(t, model.OutboxStatusProcessed, evt.Status)
		assert.NotNil(t, evt.ProcessedAt)
	}

	delivered, err = p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered, "processed events are not claimed again")
}

func TestProcessOnceRetriesWithinBatch(t *testing.T) {
	store := memory.NewStore()
	broker := &flakyBroker{Broker: messaging.NewMemoryBroker(), failures: 1}
	seedBooking(t, store, "08:00-12:00")

	p := NewOutboxProcessor(store, broker, channel, testConfig, logger.Nop(), metrics.New("test"))
	delivered, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int32(2), atomic.LoadInt32(&broker.calls))
}

func TestProcessOnceRequeuesThenParksFailures(t *testing.T) {
	store := memory.NewStore()
	broker := &flakyBroker{Broker: messaging.NewMemoryBroker(), failures: 100}
	seedBooking(t, store, "08:00-12:00")

	p := NewOutboxProcessor(store, broker, channel, testConfig, logger.Nop(), metrics.New("test"))

	delivered, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Contains(t, *events[0].ErrorMessage, "broker unavailable")

	_, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	events = store.Events()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].RetryCount)
}

func TestInterruptedPublishIsRequeued(t *testing.T) {
	store := contextBoundStore{memory.NewStore()}
	seedBooking(t, store.Store, "08:00-12:00")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := &interruptingBroker{Broker: messaging.NewMemoryBroker(), cancel: cancel}

	config := testConfig
	config.RetryAttempts = 1
	p := NewOutboxProcessor(store, broker, channel, config, logger.Nop(), metrics.New("test"))
	delivered, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status, "shutdown does not park the event")

	restarted := NewOutboxProcessor(store, broker, channel, config, logger.Nop(), metrics.New("test"))
	delivered, err = restarted.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, model.OutboxStatusProcessed, store.Events()[0].Status)
}

func TestStaleClaimIsTakenOver(t *testing.T) {
	store := memory.NewStore()
	now := time.Now()
	store.SetClock(func() time.Time { return now })
	seedBooking(t, store, "08:00-12:00")

	// A worker that died after claiming leaves the event in processing.
	claimed, err := store.ClaimPendingEvents(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	config := testConfig
	config.LeaseTimeout = time.Minute
	p := NewOutboxProcessor(store, messaging.NewMemoryBroker(), channel, config, logger.Nop(), metrics.New("test"))

	delivered, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered, "lease has not expired")

	now = now.Add(2 * time.Minute)
	delivered, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, model.OutboxStatusProcessed, store.Events()[0].Status)
}

func TestStartStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	broker := messaging.NewMemoryBroker()
	seedBooking(t, store, "08:00-12:00")

	p := NewOutboxProcessor(store, broker, channel, testConfig, logger.Nop(), metrics.New("test"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.Events()[0].Status == model.OutboxStatusProcessed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewStore(), messaging.NewMemoryBroker(), channel, OutboxProcessorConfig{}, logger.Nop(), metrics.New("test"))
	})
}
