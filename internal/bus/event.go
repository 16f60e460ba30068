package bus

import "time"

// Event kinds published by the ingestion, simulator and conversation layers.
// Subscribers filter by prefix, e.g. "message." or "contact.".
const (
	KindMessageCreated       = "message.created"
	KindMessageStatusChanged = "message.status_changed"
	KindConversationRead     = "conversation.read"
	KindContactUpdated       = "contact.updated"
	KindContactDeleted       = "contact.deleted"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageCreated is the payload of KindMessageCreated.
type MessageCreated struct {
	ExternalID      string
	CorrelationID   string
	ConversationKey string
	Direction       string
	Status          string
}

// StatusChanged is the payload of KindMessageStatusChanged.
type StatusChanged struct {
	ExternalID      string
	CorrelationID   string
	ConversationKey string
	From            string
	To              string
	Source          string
}

// ConversationRead is the payload of KindConversationRead.
type ConversationRead struct {
	ConversationKey string
	Marked          int64
}

// ContactChanged is the payload of KindContactUpdated and KindContactDeleted.
type ContactChanged struct {
	WaID string
}

// Fields flattens a known payload into a string-keyed map for transports that
// cannot carry Go types (the gRPC event stream).
func (e Event) Fields() map[string]any {
	switch p := e.Payload.(type) {
	case MessageCreated:
		return map[string]any{
			"external_id":      p.ExternalID,
			"correlation_id":   p.CorrelationID,
			"conversation_key": p.ConversationKey,
			"direction":        p.Direction,
			"status":           p.Status,
		}
	case StatusChanged:
		return map[string]any{
			"external_id":      p.ExternalID,
			"correlation_id":   p.CorrelationID,
			"conversation_key": p.ConversationKey,
			"from":             p.From,
			"to":               p.To,
			"source":           p.Source,
		}
	case ConversationRead:
		return map[string]any{
			"conversation_key": p.ConversationKey,
			"marked":           float64(p.Marked),
		}
	case ContactChanged:
		return map[string]any{"wa_id": p.WaID}
	case nil:
		return map[string]any{}
	default:
		return map[string]any{}
	}
}
