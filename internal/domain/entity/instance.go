package entity

import (
	"time"

	"github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// Instance is one concrete obligation for (kind, entity, date, window)
type Instance struct {
	Key            InstanceKey    `json:"key"`
	State          workflow.State `json:"state"`
	Version        int64          `json:"version"`
	Deadline       time.Time      `json:"deadline"`
	CreatedAt      time.Time      `json:"created_at"`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty"`
	SubmittedBy    string         `json:"submitted_by,omitempty"`
	PayloadRef     string         `json:"payload_ref,omitempty"`
	ReviewStarted  *time.Time     `json:"review_started_at,omitempty"`
	ReviewDeadline *time.Time     `json:"review_deadline,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Rating         *int           `json:"rating,omitempty"`
	ReminderSentAt *time.Time     `json:"reminder_sent_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewPendingInstance creates a fresh pending instance
func NewPendingInstance(key InstanceKey, deadline, now time.Time) *Instance {
	return &Instance{
		Key:       key,
		State:     workflow.StatePending,
		Version:   1,
		Deadline:  deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored values
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	c := *i
	c.SubmittedAt = cloneTime(i.SubmittedAt)
	c.ReviewStarted = cloneTime(i.ReviewStarted)
	c.ReviewDeadline = cloneTime(i.ReviewDeadline)
	c.ResolvedAt = cloneTime(i.ResolvedAt)
	c.ReminderSentAt = cloneTime(i.ReminderSentAt)
	if i.Rating != nil {
		r := *i.Rating
		c.Rating = &r
	}
	return &c
}

// PenaltyTarget returns who a penalty for this instance is charged to
func (i *Instance) PenaltyTarget() string {
	if i.SubmittedBy != "" {
		return i.SubmittedBy
	}
	return i.Key.EntityID
}

// IsOverdue reports whether the deadline has strictly passed at now
func (i *Instance) IsOverdue(now time.Time) bool {
	return i.Deadline.Before(now)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// InstanceFilter narrows instance listings; zero fields match everything
type InstanceFilter struct {
	Date   string
	Kind   string
	State  workflow.State
	Limit  int
	Offset int
}
