package notifications

import "time"

// EventType categorises the operation that triggered the notification.
type EventType string

const (
	TypeBulkApplied EventType = "bulk_applied"
	TypeImported    EventType = "imported"
	TypeMirrored    EventType = "mirrored"
	TypeTest        EventType = "test"
)

// Event is the JSON body POSTed to every configured webhook.
type Event struct {
	Type    EventType `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Failed  int       `json:"failed"`
	Total   int       `json:"total"`
	Time    time.Time `json:"time"`
}

// Delivery records the outcome of sending one event to one webhook.
type Delivery struct {
	Event  Event  `json:"event"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}
