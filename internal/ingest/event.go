// Package ingest applies provider events (new inbound messages and delivery
// status updates) to the store. Ingestion is idempotent so a provider may
// redeliver a payload any number of times.
package ingest

import (
	"errors"
	"time"
)

// PlaceholderBody is stored when a message arrives without renderable text.
const PlaceholderBody = "Unsupported message type"

// ErrInvalidEvent marks events that can never be applied. They are logged and
// skipped, never retried.
var ErrInvalidEvent = errors.New("invalid event")

// MessageEvent is one inbound message, already extracted from the provider
// envelope.
type MessageEvent struct {
	ExternalID string
	SenderID   string
	SenderName string
	Body       string
	Type       string
	Timestamp  time.Time
}

// StatusEvent reports a delivery status for a previously sent message.
type StatusEvent struct {
	CorrelationID string
	RecipientID   string
	Status        string
	Timestamp     time.Time
}

// Batch holds everything extracted from one webhook delivery, in payload order.
type Batch struct {
	Messages []MessageEvent
	Statuses []StatusEvent
}

// Empty reports whether the batch carries no events.
func (b Batch) Empty() bool {
	return len(b.Messages) == 0 && len(b.Statuses) == 0
}

// Result counts what happened to each event of a batch.
type Result struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Applied    int `json:"applied"`
	Stale      int `json:"stale"`
	Unresolved int `json:"unresolved"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}
