package service

import (
	"errors"
	"fmt"

	"github.com/garyjia/retail-compliance/internal/application/port"
)

// Step names
const (
	StepGenerate      = "generate"
	StepSweep         = "sweep"
	StepReviewTimeout = "review_timeout"
	StepRemind        = "remind"
	StepReap          = "reap"
)

// StepReport collects per-instance outcomes of one step. A failure on one
// instance is recorded and the step moves on to the next.
type StepReport struct {
	Step     string   `json:"step"`
	Examined int      `json:"examined"`
	Changed  int      `json:"changed"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`

	errs []error
}

// NewStepReport creates an empty report for step
func NewStepReport(step string) *StepReport {
	return &StepReport{Step: step}
}

// Fail records an error for one item
func (r *StepReport) Fail(item string, err error) {
	wrapped := fmt.Errorf("%s %s: %w", r.Step, item, err)
	r.errs = append(r.errs, wrapped)
	r.Errors = append(r.Errors, wrapped.Error())
}

// Err joins every recorded error, nil when none
func (r *StepReport) Err() error {
	return errors.Join(r.errs...)
}

// Failed returns the number of recorded errors
func (r *StepReport) Failed() int {
	return len(r.errs)
}

// Aborted reports whether the step hit an unavailable store
func (r *StepReport) Aborted() bool {
	return errors.Is(r.Err(), port.ErrStoreUnavailable)
}

// TickReport aggregates the step reports of one tick
type TickReport struct {
	Date    string        `json:"date"`
	Steps   []*StepReport `json:"steps"`
	Skipped bool          `json:"skipped,omitempty"`
}

// Step returns the report for name, or nil
func (t *TickReport) Step(name string) *StepReport {
	for _, s := range t.Steps {
		if s.Step == name {
			return s
		}
	}
	return nil
}

// Err joins the errors of all steps
func (t *TickReport) Err() error {
	var errs []error
	for _, s := range t.Steps {
		if err := s.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
