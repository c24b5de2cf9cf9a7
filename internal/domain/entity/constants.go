package entity

// Notification status constants
const (
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
	NotificationStatusSkipped = "SKIPPED"
)

// SystemActor is recorded as resolver for transitions the engine performs itself
const SystemActor = "system"

// Scheduler state keys
const (
	StateKeyLastReapDate = "last_reap_date"
	StateKeyLastTickAt   = "last_tick_at"
)
