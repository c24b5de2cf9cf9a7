package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// PenaltyService is the penalty ledger writer. Writes are idempotent per
// (instance key, reason) and run inside the caller's transaction when one is open.
type PenaltyService struct {
	repo    port.PenaltyRepository
	clock   port.Clock
	metrics Metrics
	logger  Logger
}

// NewPenaltyService creates a new PenaltyService
func NewPenaltyService(repo port.PenaltyRepository, clock port.Clock, metrics Metrics, logger Logger) *PenaltyService {
	if clock == nil {
		clock = port.SystemClock
	}
	return &PenaltyService{
		repo:    repo,
		clock:   clock,
		metrics: orNopMetrics(metrics),
		logger:  orNop(logger),
	}
}

// IssuePenalty appends a penalty unless one with the same dedup key exists.
// A duplicate is an outcome, not an error.
func (s *PenaltyService) IssuePenalty(ctx context.Context, req workflow.PenaltyRequest) (entity.PenaltyOutcome, error) {
	if err := req.InstanceKey.Validate(); err != nil {
		return entity.PenaltyNotIssued, fmt.Errorf("issue %s penalty: %w", req.Reason, err)
	}

	target := req.EntityID
	if target == "" {
		target = req.InstanceKey.EntityID
	}

	record := &entity.PenaltyRecord{
		ID:          uuid.NewString(),
		EntityID:    target,
		Category:    req.Category,
		Points:      req.Points,
		Date:        req.InstanceKey.Date,
		InstanceKey: req.InstanceKey.String(),
		Reason:      req.Reason,
		CreatedAt:   s.clock.Now(),
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, record)
	if err != nil {
		s.logger.Error("Failed to write penalty",
			"instance_key", record.InstanceKey,
			"reason", req.Reason,
			"error", err,
		)
		if errors.Is(err, port.ErrStoreUnavailable) {
			return entity.PenaltyNotIssued, err
		}
		return entity.PenaltyNotIssued, fmt.Errorf("%w: insert penalty: %v", port.ErrStoreUnavailable, err)
	}

	if !inserted {
		s.metrics.IncPenalty(req.Reason.String(), entity.PenaltyDuplicate.String())
		s.logger.Info("Penalty already issued",
			"instance_key", record.InstanceKey,
			"reason", req.Reason,
		)
		return entity.PenaltyDuplicate, nil
	}

	s.metrics.IncPenalty(req.Reason.String(), entity.PenaltyCreated.String())
	s.logger.Info("Penalty issued",
		"penalty_id", record.ID,
		"instance_key", record.InstanceKey,
		"reason", req.Reason,
		"entity_id", target,
		"points", record.Points.String(),
		"category", record.Category,
	)
	return entity.PenaltyCreated, nil
}

// ListByMonth returns ledger entries for month (YYYY-MM)
func (s *PenaltyService) ListByMonth(ctx context.Context, month string) ([]*entity.PenaltyRecord, error) {
	records, err := s.repo.ListByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list penalties for %s: %w", month, err)
	}
	return records, nil
}

// ListByInstance returns ledger entries for one instance
func (s *PenaltyService) ListByInstance(ctx context.Context, key entity.InstanceKey) ([]*entity.PenaltyRecord, error) {
	return s.repo.ListByInstance(ctx, key.String())
}

var _ workflow.PenaltyIssuer = (*PenaltyService)(nil)
