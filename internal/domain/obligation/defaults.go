package obligation

import (
	"time"

	"github.com/shopspring/decimal"
)

func hm(h, m int) ClockTime {
	return ClockTime(h*60 + m)
}

func twoWindows(morningStart, morningEnd, eveningStart, eveningEnd int) []Window {
	return []Window{
		{Name: "morning", Start: hm(morningStart, 0), End: hm(morningEnd, 0)},
		{Name: "evening", Start: hm(eveningStart, 0), End: hm(eveningEnd, 0)},
	}
}

// DefaultDefinitions returns the built-in obligation kinds used when no catalog file is configured
func DefaultDefinitions() []*Definition {
	return []*Definition{
		{
			Kind:    "shift",
			Label:   "shift report",
			Windows: twoWindows(7, 13, 14, 23),
			Review:  &ReviewPhase{Timeout: 2 * time.Hour, OnTimeout: PolicyAutoReject},
			Penalty: PenaltyRule{
				Points:   decimal.NewFromInt(-3),
				Category: "shift_missed_penalty",
			},
			NotifyAdmin: true,
		},
		{
			Kind:    "recount",
			Label:   "inventory recount",
			Windows: twoWindows(8, 14, 14, 23),
			Review:  &ReviewPhase{Timeout: 2 * time.Hour, OnTimeout: PolicyAutoReject},
			Penalty: PenaltyRule{
				Points:   decimal.NewFromInt(-3),
				Category: "recount_missed_penalty",
			},
			NotifyAdmin: true,
		},
		{
			Kind:    "rko",
			Label:   "cash register report",
			Windows: twoWindows(7, 14, 14, 23),
			Penalty: PenaltyRule{
				Points:   decimal.NewFromInt(-3),
				Category: "rko_missed_penalty",
			},
			NotifyAdmin: true,
		},
		{
			Kind:    "shift_handover",
			Label:   "shift handover",
			Windows: twoWindows(7, 14, 14, 23),
			Review:  &ReviewPhase{Timeout: 4 * time.Hour, OnTimeout: PolicyAutoReject},
			Penalty: PenaltyRule{
				Points:   decimal.NewFromInt(-3),
				Category: "shift_handover_missed_penalty",
			},
			NotifyAdmin: true,
		},
		{
			Kind:    "attendance",
			Label:   "attendance check-in",
			Windows: twoWindows(7, 9, 19, 21),
			Penalty: PenaltyRule{
				Points:   decimal.NewFromInt(-2),
				Category: "attendance_missed_penalty",
			},
			NotifyAdmin: true,
		},
		{
			Kind:    "envelope",
			Label:   "cash envelope",
			Windows: twoWindows(7, 9, 19, 21),
			Penalty: PenaltyRule{
				Points:   decimal.NewFromFloat(-5.0),
				Category: "envelope_missed_penalty",
			},
			NotifyAdmin: true,
		},
	}
}

// DefaultCatalog returns a catalog of DefaultDefinitions
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return c
}
