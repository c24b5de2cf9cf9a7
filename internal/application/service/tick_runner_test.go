package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

func TestTickRunner_FullDay(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift", "attendance"))
	ctx := context.Background()

	f.now = local(7, 30)
	report := f.runner.RunTick(ctx)
	assert.Equal(t, "2026-10-17", report.Date)
	assert.Equal(t, 2, report.Step(StepGenerate).Changed)
	assert.Len(t, report.Steps, 5)

	f.now = local(9, 5)
	report = f.runner.RunTick(ctx)
	assert.Equal(t, 1, report.Step(StepSweep).Changed, "attendance morning missed")

	_, err := f.submissions.Submit(ctx, key("shift", "shop-1", "morning"), SubmitRequest{SubmittedBy: "emp-1"})
	require.NoError(t, err)

	f.now = local(19, 30)
	report = f.runner.RunTick(ctx)
	assert.Equal(t, 1, report.Step(StepReviewTimeout).Changed)
	assert.Equal(t, 2, report.Step(StepGenerate).Changed, "evening windows")

	f.now = local(23, 59)
	report = f.runner.RunTick(ctx)
	assert.Equal(t, 2, report.Step(StepSweep).Changed)
	assert.Equal(t, 3, report.Step(StepReap).Changed, "failed instances are archived")

	assert.Equal(t, domainwf.StateRejected, f.instance(key("shift", "shop-1", "morning")).State)
	archived, ok := f.store.Instances().Archived(key("shift", "shop-1", "evening"))
	require.True(t, ok)
	assert.Equal(t, domainwf.StateFailed, archived.State)

	reasons := map[entity.PenaltyReason]int{}
	for _, r := range f.store.Penalties().All() {
		reasons[r.Reason]++
	}
	assert.Equal(t, map[entity.PenaltyReason]int{entity.ReasonFailed: 3, entity.ReasonReviewTimeout: 1}, reasons)

	last, found, err := f.store.SchedulerState().Get(ctx, entity.StateKeyLastTickAt)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, last)
	assert.Equal(t, 4, f.metrics.steps[StepGenerate])
}

func TestTickRunner_RunForDate(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift"))
	ctx := context.Background()
	f.runner.RunTick(ctx)

	f.now = local(15, 0)
	report, err := f.runner.RunForDate(ctx, "2026-10-17")
	require.NoError(t, err)
	assert.Nil(t, report.Step(StepGenerate))
	assert.Equal(t, 1, report.Step(StepSweep).Changed)

	_, err = f.runner.RunForDate(ctx, "17.10.2026")
	assert.ErrorIs(t, err, entity.ErrInvalidKey)
}

func TestTickRunner_SerializesRuns(t *testing.T) {
	f := newFixture(t, nil, shop("shop-1", "shift", "rko", "recount"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.runner.RunTick(ctx)
		}()
	}
	wg.Wait()

	instances, err := f.store.Instances().List(ctx, entity.InstanceFilter{})
	require.NoError(t, err)
	assert.Len(t, instances, 3)
}
