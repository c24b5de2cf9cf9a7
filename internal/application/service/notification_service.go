package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// NotificationService delivers notifications through the configured notifier,
// throttled by a rate limiter, and records every attempt
type NotificationService struct {
	notifier port.Notifier
	repo     port.NotificationRepository
	limiter  *rate.Limiter
	clock    port.Clock
	metrics  Metrics
	logger   Logger
}

// NotificationOption configures the notification service
type NotificationOption func(*NotificationService)

// WithRateLimit limits deliveries to perSecond with the given burst
func WithRateLimit(perSecond float64, burst int) NotificationOption {
	return func(s *NotificationService) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithNotificationClock sets the clock used for log timestamps
func WithNotificationClock(clock port.Clock) NotificationOption {
	return func(s *NotificationService) {
		s.clock = clock
	}
}

// NewNotificationService creates a new NotificationService. repo may be nil.
func NewNotificationService(notifier port.Notifier, repo port.NotificationRepository, metrics Metrics, logger Logger, opts ...NotificationOption) *NotificationService {
	s := &NotificationService{
		notifier: notifier,
		repo:     repo,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		clock:    port.SystemClock,
		metrics:  orNopMetrics(metrics),
		logger:   orNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers n and records the attempt. Delivery failures are returned wrapped
// in port.ErrNotificationDeliveryFailed; callers log them and move on.
func (s *NotificationService) Send(ctx context.Context, n entity.Notification, eventType, instanceKey string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", port.ErrNotificationDeliveryFailed, err)
	}

	sendErr := s.notifier.Send(ctx, n)

	record := &entity.NotificationRecord{
		Target:      n.Target,
		Title:       n.Title,
		Body:        n.Body,
		Metadata:    encodeMetadata(n.Metadata),
		InstanceKey: instanceKey,
		EventType:   eventType,
		CreatedAt:   s.clock.Now(),
	}
	if sendErr != nil {
		record.Status = entity.NotificationStatusFailed
		record.ErrorMessage = sendErr.Error()
	} else {
		sentAt := s.clock.Now()
		record.Status = entity.NotificationStatusSent
		record.SentAt = &sentAt
	}
	s.metrics.IncNotification(eventType, record.Status)

	if s.repo != nil {
		if err := s.repo.Create(ctx, record); err != nil {
			s.logger.Error("Failed to record notification", "instance_key", instanceKey, "error", err)
		}
	}

	if sendErr != nil {
		s.logger.Error("Notification delivery failed",
			"target", n.Target,
			"event_type", eventType,
			"instance_key", instanceKey,
			"error", sendErr,
		)
		if errors.Is(sendErr, port.ErrNotificationDeliveryFailed) {
			return sendErr
		}
		return fmt.Errorf("%w: %v", port.ErrNotificationDeliveryFailed, sendErr)
	}

	s.logger.Info("Notification sent",
		"target", n.Target,
		"event_type", eventType,
		"instance_key", instanceKey,
	)
	return nil
}

// Recent returns the latest delivery attempts
func (s *NotificationService) Recent(ctx context.Context, limit int) ([]*entity.NotificationRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRecent(ctx, limit)
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
