package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/memory"
)

func TestGenerator_CreatesOpenWindowsOnce(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift", "attendance", "unknown"))

	report := f.generator.Generate(context.Background(), f.now)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Skipped)

	inst := f.instance(key("shift", "shop-1", "morning"))
	assert.Equal(t, domainwf.StatePending, inst.State)
	assert.True(t, inst.Deadline.Equal(local(13, 0)))
	assert.Len(t, f.pub.ofType(event.TypeInstanceCreated), 1)

	again := f.generator.Generate(context.Background(), f.now)
	assert.Equal(t, 0, again.Changed)
	assert.Equal(t, 1, again.Examined)
	assert.Len(t, f.pub.ofType(event.TypeInstanceCreated), 1)
}

func TestGenerator_DirectoryUnavailable(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.store.InjectFault(memory.OpListEntities, errors.New("down"))

	report := f.generator.Generate(context.Background(), f.now)
	assert.True(t, report.Aborted())
	assert.Equal(t, 0, report.Changed)
}

func TestSweep_FailsOverdueAndIssuesPenaltyOnce(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)

	f.now = local(12, 59)
	report := f.sweeper.Sweep(context.Background(), f.now, "")
	assert.Equal(t, 0, report.Examined, "deadline not yet passed")

	f.now = local(13, 30)
	report = f.sweeper.Sweep(context.Background(), f.now, "")
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Changed)

	k := key("shift", "shop-1", "morning")
	assert.Equal(t, domainwf.StateFailed, f.instance(k).State)

	records := f.store.Penalties().All()
	require.Len(t, records, 1)
	assert.Equal(t, entity.ReasonFailed, records[0].Reason)
	assert.True(t, records[0].Points.Equal(decimal.NewFromInt(-3)))
	assert.Equal(t, "shift_missed_penalty", records[0].Category)
	assert.Equal(t, "shop-1", records[0].EntityID)

	report = f.sweeper.Sweep(context.Background(), f.now, "")
	assert.Equal(t, 0, report.Examined)
	assert.Len(t, f.store.Penalties().All(), 1)
	assert.Len(t, f.pub.ofType(event.TypeInstanceFailed), 1)
}

func TestSweep_ReconcilesRecordedSubmission(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)

	k := key("shift", "shop-1", "morning")
	require.NoError(t, f.store.Submissions().RecordSubmission(context.Background(), k, entity.SubmissionState{
		Submitted:   true,
		SubmittedAt: local(12, 30),
		SubmittedBy: "emp-7",
		PayloadRef:  "report-42",
	}))

	f.now = local(13, 5)
	report := f.sweeper.Sweep(context.Background(), f.now, "")
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Changed)

	inst := f.instance(k)
	assert.Equal(t, domainwf.StateUnderReview, inst.State)
	assert.Equal(t, "emp-7", inst.SubmittedBy)
	require.NotNil(t, inst.ReviewStarted)
	assert.True(t, inst.ReviewStarted.Equal(f.now))
	assert.Empty(t, f.store.Penalties().All())
}

func TestSweep_DateFilter(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)
	f.now = local(14, 0)

	report := f.sweeper.Sweep(context.Background(), f.now, "2026-10-16")
	assert.Equal(t, 0, report.Examined)

	report = f.sweeper.Sweep(context.Background(), f.now, "2026-10-17")
	assert.Equal(t, 1, report.Changed)
}

func TestSweep_PenaltyStoreDownLeavesInstancePending(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)
	f.store.InjectFault(memory.OpInsertPenalty, errors.New("disk full"))

	f.now = local(13, 30)
	report := f.sweeper.Sweep(context.Background(), f.now, "")
	assert.Equal(t, 1, report.Failed())
	assert.True(t, report.Aborted())

	k := key("shift", "shop-1", "morning")
	assert.Equal(t, domainwf.StatePending, f.instance(k).State)

	f.store.InjectFault(memory.OpInsertPenalty, nil)
	report = f.sweeper.Sweep(context.Background(), f.now, "")
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, domainwf.StateFailed, f.instance(k).State)
	assert.Len(t, f.store.Penalties().All(), 1)
}

func TestReviewTimeout_AutoReject(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)

	k := key("shift", "shop-1", "morning")
	_, err := f.submissions.Submit(context.Background(), k, SubmitRequest{SubmittedBy: "emp-7", PayloadRef: "r-1"})
	require.NoError(t, err)

	f.now = local(14, 0)
	report := f.reviews.ResolveTimeouts(context.Background(), f.now)
	assert.Equal(t, 0, report.Examined)

	f.now = local(14, 1)
	report = f.reviews.ResolveTimeouts(context.Background(), f.now)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Changed)

	inst := f.instance(k)
	assert.Equal(t, domainwf.StateRejected, inst.State)
	assert.Equal(t, entity.SystemActor, inst.ResolvedBy)

	records := f.store.Penalties().All()
	require.Len(t, records, 1)
	assert.Equal(t, entity.ReasonReviewTimeout, records[0].Reason)
	assert.Equal(t, "emp-7", records[0].EntityID)

	timedOut := f.pub.ofType(event.TypeReviewTimedOut)
	require.Len(t, timedOut, 1)
	assert.Equal(t, "rejected", timedOut[0].GetPayloadString(event.KeyToState))
}

func TestReviewTimeout_AutoApprove(t *testing.T) {
	def := &obligation.Definition{
		Kind:    "cleaning",
		Windows: []obligation.Window{{Name: "day", Start: 8 * 60, End: 20 * 60}},
		Review:  &obligation.ReviewPhase{Timeout: time.Hour, OnTimeout: obligation.PolicyAutoApprove, DefaultRating: 5},
		Penalty: obligation.PenaltyRule{Points: decimal.NewFromInt(-1)},
	}
	catalog, err := obligation.NewCatalog(def)
	require.NoError(t, err)

	f := newFixture(t, catalog, shop("shop-1", "cleaning"))
	f.generator.Generate(context.Background(), f.now)
	k := key("cleaning", "shop-1", "day")
	_, err = f.submissions.Submit(context.Background(), k, SubmitRequest{SubmittedBy: "emp-1"})
	require.NoError(t, err)

	f.now = local(13, 1)
	report := f.reviews.ResolveTimeouts(context.Background(), f.now)
	assert.Equal(t, 1, report.Changed)

	inst := f.instance(k)
	assert.Equal(t, domainwf.StateApproved, inst.State)
	require.NotNil(t, inst.Rating)
	assert.Equal(t, 5, *inst.Rating)
	assert.Empty(t, f.store.Penalties().All())
}

func TestSubmission_Operations(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift", "rko", "envelope"))
	f.generator.Generate(context.Background(), local(8, 0))
	ctx := context.Background()

	t.Run("kind without review stops at submitted", func(t *testing.T) {
		k := key("rko", "shop-1", "morning")
		inst, err := f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-1", PayloadRef: "rko-1"})
		require.NoError(t, err)
		assert.Equal(t, domainwf.StateSubmitted, inst.State)

		_, err = f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-1"})
		assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

		sub, err := f.store.Submissions().GetSubmissionState(ctx, k)
		require.NoError(t, err)
		assert.True(t, sub.Submitted)
		assert.Equal(t, "rko-1", sub.PayloadRef)
	})

	t.Run("approve with rating", func(t *testing.T) {
		k := key("shift", "shop-1", "morning")
		_, err := f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-2"})
		require.NoError(t, err)

		rating := 4
		inst, err := f.submissions.Approve(ctx, k, "admin-1", &rating)
		require.NoError(t, err)
		assert.Equal(t, domainwf.StateApproved, inst.State)
		assert.Equal(t, "admin-1", inst.ResolvedBy)

		_, err = f.submissions.Reject(ctx, k, "admin-1", "late")
		assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	})

	t.Run("decline without decline points issues no penalty", func(t *testing.T) {
		k := key("envelope", "shop-1", "morning")
		inst, err := f.submissions.Decline(ctx, k, "emp-3", "store closed")
		require.NoError(t, err)
		assert.Equal(t, domainwf.StateDeclined, inst.State)
		assert.Empty(t, f.store.Penalties().All())
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := f.submissions.Submit(ctx, key("nope", "shop-1", "morning"), SubmitRequest{})
		assert.ErrorIs(t, err, obligation.ErrInvalidDefinition)
	})
}

func TestSubmission_RejectPenalizesSubmitter(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)
	k := key("shift", "shop-1", "morning")

	_, err := f.submissions.Submit(context.Background(), k, SubmitRequest{SubmittedBy: "emp-9"})
	require.NoError(t, err)
	inst, err := f.submissions.Reject(context.Background(), k, "admin-1", "blurry photo")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, inst.State)
	assert.Equal(t, "blurry photo", inst.Reason)

	records := f.store.Penalties().All()
	require.Len(t, records, 1)
	assert.Equal(t, entity.ReasonRejected, records[0].Reason)
	assert.Equal(t, "emp-9", records[0].EntityID)

	issued := f.pub.ofType(event.TypePenaltyIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, "emp-9", issued[0].GetPayloadString(event.KeyEntityID))
}

func TestSubmission_ReviewStartsAtEngineTime(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	ctx := context.Background()
	f.generator.Generate(ctx, local(8, 0))
	k := key("shift", "shop-1", "morning")

	f.now = local(12, 0)
	inst, err := f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-7", At: local(9, 0)})
	require.NoError(t, err)
	assert.True(t, inst.SubmittedAt.Equal(local(9, 0)))
	assert.True(t, inst.ReviewStarted.Equal(local(12, 0)))
	assert.True(t, inst.ReviewDeadline.Equal(local(14, 0)))

	f.now = local(12, 1)
	report := f.reviews.ResolveTimeouts(ctx, f.now)
	require.NoError(t, report.Err())
	assert.Equal(t, 0, report.Changed)
	assert.Equal(t, domainwf.StateUnderReview, f.instance(k).State)
	assert.Empty(t, f.store.Penalties().All())
}

func TestSubmission_RejectsFutureTimestamp(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	ctx := context.Background()
	f.generator.Generate(ctx, f.now)
	k := key("shift", "shop-1", "morning")

	_, err := f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-7", At: f.now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrSubmittedInFuture)
	assert.Equal(t, domainwf.StatePending, f.instance(k).State)

	_, err = f.submissions.Submit(ctx, k, SubmitRequest{SubmittedBy: "emp-7", At: f.now.Add(30 * time.Second)})
	assert.NoError(t, err, "small clock skew is tolerated")
}

func TestSubmission_LateSubmissionBeatsSweep(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "rko"))
	f.generator.Generate(context.Background(), f.now)
	k := key("rko", "shop-1", "morning")

	f.now = local(14, 30)
	_, err := f.submissions.Submit(context.Background(), k, SubmitRequest{SubmittedBy: "emp-1"})
	require.NoError(t, err)

	report := f.sweeper.Sweep(context.Background(), f.now, "")
	assert.Equal(t, 0, report.Examined)
	assert.Equal(t, domainwf.StateSubmitted, f.instance(k).State)
	assert.Empty(t, f.store.Penalties().All())
}

func TestReminder_SentOncePerInstance(t *testing.T) {
	defs := obligation.DefaultDefinitions()
	for _, d := range defs {
		d.ReminderLead = 30 * time.Minute
	}
	catalog, err := obligation.NewCatalog(defs...)
	require.NoError(t, err)

	f := newFixture(t, catalog, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)

	report := f.reminders.Remind(context.Background(), local(12, 29))
	assert.Equal(t, 0, report.Changed)

	report = f.reminders.Remind(context.Background(), local(12, 30))
	assert.Equal(t, 1, report.Changed)

	report = f.reminders.Remind(context.Background(), local(12, 45))
	assert.Equal(t, 0, report.Changed)

	due := f.pub.ofType(event.TypeReminderDue)
	require.Len(t, due, 1)
	assert.Equal(t, "13:00", due[0].GetPayloadString(event.KeyDeadline))
}

func TestReaper_RunsOncePerDay(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift", "rko"))
	f.generator.Generate(context.Background(), f.now)
	f.now = local(14, 30)
	f.sweeper.Sweep(context.Background(), f.now, "")

	due, dates, err := f.reaper.Due(context.Background(), local(23, 58))
	require.NoError(t, err)
	assert.True(t, due, "nothing reaped yet, so yesterday is owed")
	require.Len(t, dates, ReapCatchUpDays)
	assert.Equal(t, "2026-10-16", dates[len(dates)-1])

	report := f.reaper.Reap(context.Background(), local(23, 59))
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Changed)

	k := key("shift", "shop-1", "morning")
	_, err = f.store.Instances().GetByKey(context.Background(), k)
	assert.Error(t, err)
	archived, ok := f.store.Instances().Archived(k)
	require.True(t, ok)
	assert.Equal(t, domainwf.StateFailed, archived.State)

	last, found, err := f.store.SchedulerState().Get(context.Background(), entity.StateKeyLastReapDate)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-10-17", last)

	report = f.reaper.Reap(context.Background(), local(23, 59).Add(30*time.Second))
	assert.Equal(t, 0, report.Examined)
	due, _, err = f.reaper.Due(context.Background(), local(23, 59).Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, due, "the next day's reap is not owed before its 23:59")
	assert.Len(t, f.store.Penalties().All(), 2, "ledger survives the reap")
	assert.Len(t, f.pub.ofType(event.TypeInstancesReaped), 1)
}

func TestReaper_CatchesUpAfterMissedMinute(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	ctx := context.Background()
	f.generator.Generate(ctx, f.now)
	k := key("shift", "shop-1", "morning")

	f.now = local(13, 2)
	end := f.now.Add(36 * time.Hour)
	for ; f.now.Before(end); f.now = f.now.Add(5 * time.Minute) {
		require.NoError(t, f.runner.RunTick(ctx).Err())
		if _, ok := f.store.Instances().Archived(k); ok {
			break
		}
	}

	archived, ok := f.store.Instances().Archived(k)
	require.True(t, ok, "a 5 minute cadence never lands on 23:59")
	assert.Equal(t, domainwf.StateFailed, archived.State)
	assert.Equal(t, local(0, 2).AddDate(0, 0, 1), f.now, "reaped by the first tick of the next day")

	last, found, err := f.store.SchedulerState().Get(ctx, entity.StateKeyLastReapDate)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-10-17", last)
}

func TestReaper_ReapsEveryMissedDate(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	ctx := context.Background()
	f.generator.Generate(ctx, f.now)
	f.now = local(14, 0)
	f.sweeper.Sweep(ctx, f.now, "")
	require.NoError(t, f.store.SchedulerState().Set(ctx, entity.StateKeyLastReapDate, "2026-10-15"))

	due, dates, err := f.reaper.Due(ctx, local(10, 0).AddDate(0, 0, 3))
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, []string{"2026-10-16", "2026-10-17", "2026-10-18", "2026-10-19"}, dates)

	report := f.reaper.Reap(ctx, local(10, 0).AddDate(0, 0, 3))
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Changed)
	_, ok := f.store.Instances().Archived(key("shift", "shop-1", "morning"))
	assert.True(t, ok)

	last, _, err := f.store.SchedulerState().Get(ctx, entity.StateKeyLastReapDate)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", last)
}

func TestReaper_StateWriteFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	f.generator.Generate(context.Background(), f.now)
	f.now = local(14, 0)
	f.sweeper.Sweep(context.Background(), f.now, "")
	f.store.InjectFault(memory.OpSetState, errors.New("locked"))

	report := f.reaper.Reap(context.Background(), local(23, 59))
	assert.Equal(t, 1, report.Failed())

	k := key("shift", "shop-1", "morning")
	assert.Equal(t, domainwf.StateFailed, f.instance(k).State)
}

func TestPenaltyService_DedupAndStoreErrors(t *testing.T) {
	store := memory.NewStore()
	metrics := newCountingMetrics()
	svc := NewPenaltyService(store.Penalties(), port.ClockFunc(func() time.Time { return local(12, 0) }), metrics, nil)
	k := key("shift", "shop-1", "morning")
	req := workflow.PenaltyRequest{InstanceKey: k, Reason: entity.ReasonFailed, Points: decimal.NewFromInt(-3), Category: "shift_missed_penalty"}

	outcome, err := svc.IssuePenalty(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entity.PenaltyCreated, outcome)

	outcome, err = svc.IssuePenalty(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entity.PenaltyDuplicate, outcome)

	req.Reason = entity.ReasonRejected
	outcome, err = svc.IssuePenalty(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entity.PenaltyCreated, outcome)

	assert.Equal(t, 1, metrics.penalties["failed/duplicate"])

	records, err := svc.ListByMonth(context.Background(), "2026-10")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	store.InjectFault(memory.OpInsertPenalty, errors.New("io"))
	req.Reason = entity.ReasonDeclined
	outcome, err = svc.IssuePenalty(context.Background(), req)
	assert.ErrorIs(t, err, port.ErrStoreUnavailable)
	assert.Equal(t, entity.PenaltyNotIssued, outcome)

	outcome, err = svc.IssuePenalty(context.Background(), workflow.PenaltyRequest{Reason: entity.ReasonFailed})
	assert.ErrorIs(t, err, entity.ErrInvalidKey)
	assert.Contains(t, err.Error(), "issue failed penalty")
	assert.Equal(t, entity.PenaltyNotIssued, outcome)
	assert.Equal(t, "not_issued", outcome.String())
}
