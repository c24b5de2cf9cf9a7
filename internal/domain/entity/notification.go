package entity

import "time"

// BroadcastTarget addresses the admin channel instead of a single entity
const BroadcastTarget = "*admin"

// Notification is a rendered message ready for delivery
type Notification struct {
	Target   string            `json:"target"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsBroadcast reports whether the notification goes to the admin channel
func (n Notification) IsBroadcast() bool {
	return n.Target == BroadcastTarget
}

// NotificationRecord is one delivery attempt in the notification log
type NotificationRecord struct {
	ID           int64      `json:"id"`
	Target       string     `json:"target"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Metadata     string     `json:"metadata"`
	InstanceKey  string     `json:"instance_key,omitempty"`
	EventType    string     `json:"event_type"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
