package service

import (
	"context"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// ReminderService sends one reminder per pending instance shortly before its deadline
type ReminderService struct {
	instances port.InstanceRepository
	catalog   *obligation.Catalog
	resolver  *obligation.Resolver
	publisher dispatcher.Publisher
	logger    Logger
}

// NewReminderService creates a new ReminderService
func NewReminderService(
	instances port.InstanceRepository,
	catalog *obligation.Catalog,
	resolver *obligation.Resolver,
	publisher dispatcher.Publisher,
	logger Logger,
) *ReminderService {
	return &ReminderService{
		instances: instances,
		catalog:   catalog,
		resolver:  resolver,
		publisher: publisher,
		logger:    orNop(logger),
	}
}

// Remind publishes reminder.due for pending instances with
// deadline - reminder_lead <= now < deadline that have not been reminded
func (s *ReminderService) Remind(ctx context.Context, now time.Time) *StepReport {
	report := NewStepReport(StepRemind)

	pending, err := s.instances.ListByState(ctx, domainwf.StatePending)
	if err != nil {
		report.Fail("list", err)
		return report
	}

	for _, inst := range pending {
		def, ok := s.catalog.Get(inst.Key.Kind)
		if !ok || def.ReminderLead <= 0 || inst.ReminderSentAt != nil {
			continue
		}
		if now.Before(inst.Deadline.Add(-def.ReminderLead)) || !now.Before(inst.Deadline) {
			continue
		}
		report.Examined++

		won, err := s.instances.MarkReminderSent(ctx, inst.Key, now)
		if err != nil {
			s.logger.Error("Failed to mark reminder", "instance_key", inst.Key.String(), "error", err)
			report.Fail(inst.Key.String(), err)
			continue
		}
		if !won {
			report.Skipped++
			continue
		}

		report.Changed++
		if s.publisher != nil {
			s.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeReminderDue, inst.Key.String(), map[string]interface{}{
				event.KeyEntityID: inst.Key.EntityID,
				event.KeyKind:     inst.Key.Kind,
				event.KeyWindow:   inst.Key.Window,
				event.KeyDate:     inst.Key.Date,
				event.KeyDeadline: inst.Deadline.In(s.resolver.Location()).Format("15:04"),
			}))
		}
	}

	return report
}
