package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/wphook/internal/status"
)

// Direction tells whether a message was received from or sent to the contact.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Message is a single recorded message. Times are unix milliseconds.
type Message struct {
	ID              int64
	ExternalID      string
	CorrelationID   string
	ConversationKey string
	SenderName      string
	Body            string
	MessageType     string
	Direction       Direction
	Status          status.Status
	Timestamp       int64
	CreatedAt       int64
	UpdatedAt       int64
}

// Presence is the online indicator shown for a contact.
type Presence string

const (
	PresenceOnline   Presence = "online"
	PresenceOffline  Presence = "offline"
	PresenceLastSeen Presence = "last seen"
)

// Valid reports whether p is one of the known presence values.
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceOffline, PresenceLastSeen:
		return true
	}
	return false
}

// Contact is a conversation partner, keyed by WhatsApp id. Contacts created
// implicitly by ingestion carry Implicit=true until claimed by a create.
type Contact struct {
	WaID           string     `gorm:"column:wa_id;primaryKey" json:"wa_id"`
	Name           string     `gorm:"column:name" json:"name"`
	ProfilePicture string     `gorm:"column:profile_picture" json:"profilePicture"`
	Presence       Presence   `gorm:"column:presence" json:"status"`
	LastSeen       *time.Time `gorm:"column:last_seen" json:"lastSeen"`
	IsArchived     bool       `gorm:"column:is_archived" json:"isArchived"`
	IsBlocked      bool       `gorm:"column:is_blocked" json:"isBlocked"`
	IsPinned       bool       `gorm:"column:is_pinned" json:"isPinned"`
	IsMuted        bool       `gorm:"column:is_muted" json:"isMuted"`
	MuteUntil      *time.Time `gorm:"column:mute_until" json:"muteUntil"`
	Notes          string     `gorm:"column:notes" json:"notes"`
	Labels         Labels     `gorm:"column:labels" json:"labels"`
	Implicit       bool       `gorm:"column:is_implicit" json:"implicit"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

func (Contact) TableName() string { return "contacts" }

// Labels is stored as a JSON array in a TEXT column.
type Labels []string

func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Labels) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = Labels{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("labels: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// ContactFilter narrows ListContacts. Nil flags are not filtered on.
type ContactFilter struct {
	Archived *bool
	Blocked  *bool
	Pinned   *bool
	Search   string
}

// ContactUpdate carries the editable profile fields. Nil fields are left as is.
type ContactUpdate struct {
	Name           *string
	ProfilePicture *string
	Notes          *string
	Labels         *[]string
}

// Flag is a boolean contact attribute that can be toggled.
type Flag string

const (
	FlagArchive Flag = "archive"
	FlagBlock   Flag = "block"
	FlagPin     Flag = "pin"
	FlagMute    Flag = "mute"
)

// ParseFlag validates a toggle action name.
func ParseFlag(s string) (Flag, error) {
	switch f := Flag(s); f {
	case FlagArchive, FlagBlock, FlagPin, FlagMute:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlag, s)
}

func (f Flag) column() string {
	switch f {
	case FlagArchive:
		return "is_archived"
	case FlagBlock:
		return "is_blocked"
	case FlagPin:
		return "is_pinned"
	default:
		return "is_muted"
	}
}

// Summary is the per-conversation aggregate used for ranking.
type Summary struct {
	ConversationKey string
	LastMessage     string
	LastMessageTime int64
	UnreadCount     int
}

// Stats is a global message count breakdown.
type Stats struct {
	TotalMessages      int64
	TotalConversations int64
	Sent               int64
	Delivered          int64
	Read               int64
}
