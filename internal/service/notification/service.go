// Package notification emails requesters when their appointment is received,
// confirmed or cancelled. It consumes booking events from the broker.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// seenTTL bounds how long a delivered message ID is remembered for dedupe.
const seenTTL = time.Hour

type Service struct {
	emailSvc  email.Service
	directory repository.DirectoryRepository
	seen      *cache.Cache
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewService(emailSvc email.Service, directory repository.DirectoryRepository, m *metrics.Metrics, l *logger.Logger) *Service {
	if l == nil {
		l = logger.Nop()
	}
	return &Service{
		emailSvc:  emailSvc,
		directory: directory,
		seen:      cache.New(seenTTL, 2*seenTTL),
		metrics:   m,
		logger:    l.With("component", "notification"),
	}
}

// Listen consumes channel until ctx ends.
func (s *Service) Listen(ctx context.Context, broker messaging.MessageBroker, channel string) error {
	if err := broker.Subscribe(ctx, channel, s.Handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	s.logger.Info("listening for booking events", "channel", channel)
	return nil
}

// Handle processes one broker message. Redelivered messages are ignored.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if envelope.ID != "" {
		if _, dup := s.seen.Get(envelope.ID); dup {
			return nil
		}
	}

	eventType, payload, err := event.Decode(raw)
	if err != nil {
		return err
	}

	n, err := s.render(ctx, eventType, payload)
	if err != nil {
		return err
	}
	if n == nil {
		s.count(model.NotificationStatusSkipped)
		s.remember(envelope.ID)
		return nil
	}

	if err := s.emailSvc.Send(ctx, n); err != nil {
		s.count(model.NotificationStatusFailed)
		return err
	}
	s.count(model.NotificationStatusSent)
	s.remember(envelope.ID)
	s.logger.Info("notification sent", "bookingId", payload.BookingID.String(), "event", eventType)
	return nil
}

// render returns nil when the event does not warrant an email.
func (s *Service) render(ctx context.Context, eventType string, evt *model.BookingEvent) (*model.Notification, error) {
	if evt.Kind != model.BookingKindAppointment || evt.Requester == nil || evt.Requester.Email == "" {
		return nil, nil
	}

	var subject, lead string
	switch {
	case eventType == model.EventBookingCreated:
		subject, lead = "Appointment request received", "We have received your appointment request."
	case eventType == model.EventBookingStatusChanged && evt.Status == string(lifecycle.StatusConfirmed):
		subject, lead = "Appointment confirmed", "Your appointment is confirmed."
	case eventType == model.EventBookingStatusChanged && evt.Status == string(lifecycle.StatusCancelled):
		subject, lead = "Appointment cancelled", "Your appointment has been cancelled."
	default:
		return nil, nil
	}

	providerName := "your provider"
	if provider, err := s.directory.GetProvider(ctx, evt.ProviderID); err == nil {
		providerName = provider.FullName()
	} else {
		s.logger.Warn("provider lookup failed", "providerId", evt.ProviderID.String(), "error", err.Error())
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\n%s\n\n", evt.Requester.FullName, lead)
	fmt.Fprintf(&body, "Provider: %s\nDate: %s\nTime: %s - %s\n", providerName, evt.Date, evt.Start, evt.End)
	if evt.Requester.ReasonForVisit != "" {
		fmt.Fprintf(&body, "Reason for visit: %s\n", evt.Requester.ReasonForVisit)
	}
	fmt.Fprintf(&body, "\nReference: %s\n", evt.BookingID)

	return &model.Notification{To: evt.Requester.Email, Subject: subject, Body: body.String()}, nil
}

func (s *Service) remember(id string) {
	if id != "" {
		s.seen.SetDefault(id, struct{}{})
	}
}

func (s *Service) count(status model.NotificationStatus) {
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(string(status)).Inc()
	}
}
