package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PenaltyReason is the second half of a penalty's dedup key
type PenaltyReason string

const (
	ReasonFailed        PenaltyReason = "failed"
	ReasonReviewTimeout PenaltyReason = "review_timeout"
	ReasonRejected      PenaltyReason = "rejected"
	ReasonDeclined      PenaltyReason = "declined"
)

// String returns the string representation of the reason
func (r PenaltyReason) String() string {
	return string(r)
}

// PenaltyRecord is an immutable ledger entry. At most one exists per (InstanceKey, Reason).
type PenaltyRecord struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entity_id"`
	Category    string          `json:"category"`
	Points      decimal.Decimal `json:"points"`
	Date        string          `json:"date"`
	InstanceKey string          `json:"instance_key"`
	Reason      PenaltyReason   `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PenaltyOutcome reports whether IssuePenalty wrote a new record
type PenaltyOutcome int

const (
	// PenaltyNotIssued accompanies an error; nothing was written
	PenaltyNotIssued PenaltyOutcome = iota
	PenaltyCreated
	PenaltyDuplicate
)

// String returns the string representation of the outcome
func (o PenaltyOutcome) String() string {
	switch o {
	case PenaltyCreated:
		return "created"
	case PenaltyDuplicate:
		return "duplicate"
	case PenaltyNotIssued:
		return "not_issued"
	default:
		return "unknown"
	}
}
