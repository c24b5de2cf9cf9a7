package service

import (
	"context"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// TestTickIdempotence checks that for any schedule of ticks and submissions
// a repeated tick at the same instant changes nothing, every (instance, reason)
// has at most one penalty and no overdue instance is left pending.
func TestTickIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	kinds := []string{"shift", "rko", "attendance", "envelope"}

	properties.Property("ticks are idempotent and penalties deduplicated", prop.ForAll(
		func(minutes []int, submits []bool) bool {
			f := newFixture(t, nil, shop("shop-1", kinds...), shop("shop-2", "shift", "recount"))
			ctx := context.Background()
			sort.Ints(minutes)

			for i, m := range minutes {
				f.now = local(m/60, m%60)
				f.runner.RunTick(ctx)

				if i < len(submits) && submits[i] {
					pending, _ := f.store.Instances().ListByState(ctx, domainwf.StatePending)
					for _, inst := range pending {
						_, _ = f.submissions.Submit(ctx, inst.Key, SubmitRequest{SubmittedBy: "emp-" + inst.Key.EntityID})
						break
					}
				}

				again := f.runner.RunTick(ctx)
				for _, step := range again.Steps {
					if step.Changed != 0 || step.Failed() != 0 {
						return false
					}
				}
			}

			seen := map[string]bool{}
			for _, r := range f.store.Penalties().All() {
				k := r.InstanceKey + "/" + r.Reason.String()
				if seen[k] {
					return false
				}
				seen[k] = true
			}

			instances, err := f.store.Instances().List(ctx, entity.InstanceFilter{})
			if err != nil {
				return false
			}
			for _, inst := range instances {
				if inst.State == domainwf.StatePending && inst.IsOverdue(f.now) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.IntRange(6*60, 24*60-1)),
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}
