// Package ranking orders contacts into the conversation list shown to users.
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/matheus3301/wphook/internal/store"
)

// Conversation is a contact merged with its message summary.
type Conversation struct {
	store.Contact
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount"`
}

// Rank merges contacts with their summaries and sorts them: pinned first, then
// conversations with activity by last message time descending, then contacts
// without activity by creation time descending, then by wa_id. The input slice
// is not modified.
func Rank(contacts []store.Contact, summaries map[string]store.Summary) []Conversation {
	out := make([]Conversation, 0, len(contacts))
	for _, c := range contacts {
		conv := Conversation{Contact: c}
		if s, ok := summaries[c.WaID]; ok {
			t := time.UnixMilli(s.LastMessageTime)
			conv.LastMessage = s.LastMessage
			conv.LastMessageTime = &t
			conv.UnreadCount = s.UnreadCount
		}
		out = append(out, conv)
	}
	slices.SortFunc(out, compare)
	return out
}

func compare(a, b Conversation) int {
	if a.IsPinned != b.IsPinned {
		if a.IsPinned {
			return -1
		}
		return 1
	}

	aActive, bActive := a.LastMessageTime != nil, b.LastMessageTime != nil
	switch {
	case aActive && bActive:
		if c := b.LastMessageTime.Compare(*a.LastMessageTime); c != 0 {
			return c
		}
	case aActive:
		return -1
	case bActive:
		return 1
	default:
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.WaID, b.WaID)
}
