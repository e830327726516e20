package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

const (
	DefaultLeaseTimeout = 5 * time.Minute
	markTimeout         = 5 * time.Second
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// LeaseTimeout is how long a claimed event may stay in processing before another
	// poll takes it over.
	LeaseTimeout time.Duration
}

// OutboxProcessor relays committed booking events to the broker. Each event is
// published at least once; consumers dedupe on the message ID.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	channel string
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	channel string,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if channel == "" {
		panic("channel must not be empty")
	}
	if config.LeaseTimeout <= 0 {
		config.LeaseTimeout = DefaultLeaseTimeout
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		channel: channel,
		config:  config,
		logger:  logger.With("component", "outbox_processor"),
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessOnce claims one batch and publishes it. It returns how many events were
// delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPendingEvents(ctx, p.config.BatchSize, p.config.LeaseTimeout)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	delivered := 0
	for _, evt := range events {
		if err := p.processEvent(ctx, evt); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", evt.ID.String(),
				"event_type", evt.EventType)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, evt *model.OutboxEvent) error {
	msg := event.ToMessage(evt)
	attempt := 0
	publish := func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, p.channel, msg)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.RetryDelay), uint64(p.config.RetryAttempts-1)),
		ctx,
	)
	// Status writes must land even when ctx was cancelled mid-publish.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if err := backoff.Retry(publish, policy); err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		// Deliveries that keep failing across polls are parked as failed. An interrupted
		// publish always goes back to pending.
		requeue := ctx.Err() != nil || evt.RetryCount+1 < p.config.RetryAttempts
		if markErr := p.repo.MarkFailed(markCtx, evt.ID, err.Error(), requeue); markErr != nil {
			p.logger.Error(markErr, "Failed to update event status", "event_id", evt.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(markCtx, evt.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", evt.ID.String())
		return err
	}
	return nil
}
