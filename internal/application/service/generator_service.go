package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
)

// GeneratorService creates pending instances for every open window
type GeneratorService struct {
	directory port.EntityDirectory
	instances port.InstanceRepository
	catalog   *obligation.Catalog
	resolver  *obligation.Resolver
	publisher dispatcher.Publisher
	logger    Logger
}

// NewGeneratorService creates a new GeneratorService
func NewGeneratorService(
	directory port.EntityDirectory,
	instances port.InstanceRepository,
	catalog *obligation.Catalog,
	resolver *obligation.Resolver,
	publisher dispatcher.Publisher,
	logger Logger,
) *GeneratorService {
	return &GeneratorService{
		directory: directory,
		instances: instances,
		catalog:   catalog,
		resolver:  resolver,
		publisher: publisher,
		logger:    orNop(logger),
	}
}

// Generate creates, if absent, a pending instance for each active entity, each of
// its kinds and each window with start <= now < deadline on today's local date.
func (s *GeneratorService) Generate(ctx context.Context, now time.Time) *StepReport {
	report := NewStepReport(StepGenerate)

	entities, err := s.directory.ListActiveEntities(ctx)
	if err != nil {
		report.Fail("directory", fmt.Errorf("%w: list entities: %v", port.ErrStoreUnavailable, err))
		return report
	}

	for _, e := range entities {
		for _, kind := range e.ObligationKinds {
			def, ok := s.catalog.Get(kind)
			if !ok {
				s.logger.Warn("Skipping unknown obligation kind", "entity_id", e.ID, "kind", kind)
				report.Skipped++
				continue
			}
			s.generateFor(ctx, report, e, def, now)
		}
	}

	return report
}

func (s *GeneratorService) generateFor(ctx context.Context, report *StepReport, e entity.Entity, def *obligation.Definition, now time.Time) {
	occurrences, err := s.resolver.Open(def, now)
	if err != nil {
		report.Fail(e.ID+"/"+def.Kind, err)
		return
	}

	for _, occ := range occurrences {
		report.Examined++

		key, err := entity.NewInstanceKey(def.Kind, e.ID, occ.Date, occ.Window.Name)
		if err != nil {
			report.Fail(e.ID+"/"+def.Kind, err)
			continue
		}

		created, err := s.instances.CreateIfAbsent(ctx, entity.NewPendingInstance(key, occ.Deadline, now))
		if err != nil {
			s.logger.Error("Failed to create instance", "instance_key", key.String(), "error", err)
			report.Fail(key.String(), err)
			continue
		}
		if !created {
			continue
		}

		report.Changed++
		s.logger.Info("Instance created",
			"instance_key", key.String(),
			"deadline", occ.Deadline,
		)
		if s.publisher != nil {
			s.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeInstanceCreated, key.String(), map[string]interface{}{
				event.KeyEntityID: e.ID,
				event.KeyKind:     def.Kind,
				event.KeyWindow:   occ.Window.Name,
				event.KeyDate:     occ.Date,
				event.KeyDeadline: occ.Deadline.In(s.resolver.Location()).Format("2006-01-02 15:04"),
			}))
		}
	}
}
