package obligation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidDefinition is returned when an obligation definition fails validation
var ErrInvalidDefinition = errors.New("invalid obligation definition")

// TimeoutPolicy decides what happens to an instance whose review window lapses
type TimeoutPolicy string

const (
	PolicyAutoApprove TimeoutPolicy = "auto_approve"
	PolicyAutoReject  TimeoutPolicy = "auto_reject"
)

// IsValid reports whether the policy is one of the known policies
func (p TimeoutPolicy) IsValid() bool {
	return p == PolicyAutoApprove || p == PolicyAutoReject
}

// ClockTime is a local time of day in minutes after midnight
type ClockTime int

// ParseClockTime parses "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q: %v", ErrInvalidDefinition, s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// Duration returns the offset from local midnight
func (c ClockTime) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// String formats the clock time as "HH:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is a named daily submission window, half-open [Start, End)
type Window struct {
	Name  string
	Start ClockTime
	End   ClockTime
}

// CrossesMidnight reports whether the window ends on the following day
func (w Window) CrossesMidnight() bool {
	return w.End <= w.Start
}

// Contains reports whether the time of day falls inside the window
func (w Window) Contains(c ClockTime) bool {
	if w.CrossesMidnight() {
		return c >= w.Start || c < w.End
	}
	return c >= w.Start && c < w.End
}

// ReviewPhase configures the admin review sub-workflow
type ReviewPhase struct {
	Timeout       time.Duration
	OnTimeout     TimeoutPolicy
	DefaultRating int
}

// PenaltyRule configures points issued for missed, rejected or declined instances
type PenaltyRule struct {
	Points        decimal.Decimal
	Category      string
	DeclinePoints decimal.Decimal
}

// Definition is the static description of one obligation kind
type Definition struct {
	Kind string
	// Label is the human-readable name used in notifications
	Label          string
	Windows        []Window
	DeadlineOffset time.Duration
	Review         *ReviewPhase
	Penalty        PenaltyRule
	ReminderLead   time.Duration
	NotifyAdmin    bool
}

// DisplayName returns Label, or Kind when no label is set
func (d *Definition) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Kind
}

// HasReview reports whether submitted instances enter under_review
func (d *Definition) HasReview() bool {
	return d.Review != nil
}

// Window returns the named window
func (d *Definition) Window(name string) (Window, bool) {
	for _, w := range d.Windows {
		if w.Name == name {
			return w, true
		}
	}
	return Window{}, false
}

// PenaltyCategory renders the category template for a window
func (d *Definition) PenaltyCategory(window string) string {
	category := d.Penalty.Category
	if category == "" {
		category = "{kind}_missed_penalty"
	}
	return strings.NewReplacer("{kind}", d.Kind, "{window}", window).Replace(category)
}

// Validate checks the definition is internally consistent
func (d *Definition) Validate() error {
	if d.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidDefinition)
	}
	if strings.Contains(d.Kind, "|") {
		return fmt.Errorf("%w: kind %q contains '|'", ErrInvalidDefinition, d.Kind)
	}
	if len(d.Windows) == 0 {
		return fmt.Errorf("%w: %s: at least one window is required", ErrInvalidDefinition, d.Kind)
	}

	seen := make(map[string]bool, len(d.Windows))
	for _, w := range d.Windows {
		if w.Name == "" || strings.Contains(w.Name, "|") {
			return fmt.Errorf("%w: %s: invalid window name %q", ErrInvalidDefinition, d.Kind, w.Name)
		}
		if seen[w.Name] {
			return fmt.Errorf("%w: %s: duplicate window %q", ErrInvalidDefinition, d.Kind, w.Name)
		}
		seen[w.Name] = true
		if w.Start == w.End {
			return fmt.Errorf("%w: %s/%s: window is empty", ErrInvalidDefinition, d.Kind, w.Name)
		}
	}

	if d.DeadlineOffset < 0 {
		return fmt.Errorf("%w: %s: deadline_offset must not be negative", ErrInvalidDefinition, d.Kind)
	}
	if d.ReminderLead < 0 {
		return fmt.Errorf("%w: %s: reminder_lead must not be negative", ErrInvalidDefinition, d.Kind)
	}
	if d.Penalty.Points.IsPositive() {
		return fmt.Errorf("%w: %s: penalty points must be zero or negative", ErrInvalidDefinition, d.Kind)
	}
	if d.Penalty.DeclinePoints.IsPositive() {
		return fmt.Errorf("%w: %s: decline points must be zero or negative", ErrInvalidDefinition, d.Kind)
	}

	if d.Review != nil {
		if d.Review.Timeout <= 0 {
			return fmt.Errorf("%w: %s: review timeout must be positive", ErrInvalidDefinition, d.Kind)
		}
		if !d.Review.OnTimeout.IsValid() {
			return fmt.Errorf("%w: %s: review on_timeout must be %q or %q, got %q",
				ErrInvalidDefinition, d.Kind, PolicyAutoApprove, PolicyAutoReject, d.Review.OnTimeout)
		}
	}

	return nil
}
