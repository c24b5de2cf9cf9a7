package service

import (
	"context"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// ReapAt is the local time of day from which the daily reap may run
var ReapAt = obligation.ClockTime(23*60 + 59)

// ReapCatchUpDays bounds how many past dates one reap will archive when ticks
// were missed or no reap has been recorded yet.
const ReapCatchUpDays = 7

// ReaperService archives failed and declined instances once per local day
type ReaperService struct {
	instances port.InstanceRepository
	state     port.SchedulerStateRepository
	txManager port.TransactionManager
	resolver  *obligation.Resolver
	publisher dispatcher.Publisher
	logger    Logger
}

// NewReaperService creates a new ReaperService
func NewReaperService(
	instances port.InstanceRepository,
	state port.SchedulerStateRepository,
	txManager port.TransactionManager,
	resolver *obligation.Resolver,
	publisher dispatcher.Publisher,
	logger Logger,
) *ReaperService {
	return &ReaperService{
		instances: instances,
		state:     state,
		txManager: txManager,
		resolver:  resolver,
		publisher: publisher,
		logger:    orNop(logger),
	}
}

// Due reports whether a reap is owed at now and, if so, the local dates still to
// reap in order. The day's reap is owed from 23:59 local; a day whose 23:59 passed
// without a tick is picked up by the first tick after it.
func (s *ReaperService) Due(ctx context.Context, now time.Time) (bool, []string, error) {
	if now.IsZero() {
		return false, nil, obligation.ErrInvalidTimestamp
	}
	local := now.In(s.resolver.Location())
	target := local
	if obligation.ClockTime(local.Hour()*60+local.Minute()) < ReapAt {
		target = local.AddDate(0, 0, -1)
	}
	target = time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, target.Location())
	targetDate := target.Format(entity.DateLayout)

	last, found, err := s.state.Get(ctx, entity.StateKeyLastReapDate)
	if err != nil {
		return false, nil, err
	}
	if found && last >= targetDate {
		return false, nil, nil
	}

	first := target.AddDate(0, 0, -(ReapCatchUpDays - 1))
	if found {
		if lastDay, err := s.resolver.Midnight(last); err == nil && lastDay.AddDate(0, 0, 1).After(first) {
			first = lastDay.AddDate(0, 0, 1)
		}
	}

	var dates []string
	for d := first; !d.After(target); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(entity.DateLayout))
	}
	return true, dates, nil
}

// Reap archives every owed date, oldest first, and stops at the first failure
// so the next tick retries from there.
func (s *ReaperService) Reap(ctx context.Context, now time.Time) *StepReport {
	report := NewStepReport(StepReap)

	due, dates, err := s.Due(ctx, now)
	if err != nil {
		report.Fail("state", err)
		return report
	}
	if !due {
		return report
	}

	for _, date := range dates {
		if !s.reapDate(ctx, report, date, now) {
			break
		}
	}
	return report
}

// ReapDate archives stale instances of date regardless of the time of day
func (s *ReaperService) ReapDate(ctx context.Context, date string, now time.Time) *StepReport {
	report := NewStepReport(StepReap)
	s.reapDate(ctx, report, date, now)
	return report
}

func (s *ReaperService) reapDate(ctx context.Context, report *StepReport, date string, now time.Time) bool {
	var count int
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		count, err = s.instances.ArchiveStale(txCtx, date,
			[]domainwf.State{domainwf.StateFailed, domainwf.StateDeclined}, now)
		if err != nil {
			return err
		}
		return s.state.Set(txCtx, entity.StateKeyLastReapDate, date)
	})
	if err != nil {
		s.logger.Error("Failed to reap instances", "date", date, "error", err)
		report.Fail(date, err)
		return false
	}

	report.Examined += count
	report.Changed += count
	if count == 0 {
		return true
	}
	s.logger.Info("Reaped stale instances", "date", date, "count", count)

	if s.publisher != nil {
		s.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeInstancesReaped, "", map[string]interface{}{
			event.KeyDate:  date,
			event.KeyCount: count,
		}))
	}
	return true
}
