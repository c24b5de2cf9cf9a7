package entity

import "time"

// Entity is an employee or shop that owes obligations
type Entity struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NotifyID        string   `json:"notify_id"`
	ObligationKinds []string `json:"obligation_kinds"`
	Active          bool     `json:"active"`
}

// SubmissionState is what the submission store knows about an instance
type SubmissionState struct {
	Submitted   bool      `json:"submitted"`
	SubmittedAt time.Time `json:"submitted_at"`
	SubmittedBy string    `json:"submitted_by"`
	PayloadRef  string    `json:"payload_ref"`
}
