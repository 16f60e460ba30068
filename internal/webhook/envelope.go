// Package webhook receives WhatsApp Cloud API webhook calls: the subscription
// handshake and event deliveries.
package webhook

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wphook/internal/ingest"
)

// ObjectBusinessAccount is the only envelope object this receiver accepts.
const ObjectBusinessAccount = "whatsapp_business_account"

// ErrUnrecognized is returned by Batch when the envelope is not a WhatsApp
// Business Account delivery.
var ErrUnrecognized = errors.New("unrecognized webhook envelope")

// Envelope is the body of a webhook delivery.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string        `json:"messaging_product"`
	Metadata         Metadata      `json:"metadata"`
	Contacts         []ContactInfo `json:"contacts,omitempty"`
	Messages         []Message     `json:"messages,omitempty"`
	Statuses         []Status      `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// ContactInfo carries the sender profile attached to inbound messages.
type ContactInfo struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Sticker     *Media       `json:"sticker,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Reaction    *Reaction    `json:"reaction,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Status is a delivery status notification for a message sent by the business.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Batch extracts every message and status event of every entry and change,
// in payload order.
func (e *Envelope) Batch() (ingest.Batch, error) {
	var b ingest.Batch
	if e.Object != ObjectBusinessAccount {
		return b, ErrUnrecognized
	}

	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			v := change.Value

			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, m := range v.Messages {
				b.Messages = append(b.Messages, ingest.MessageEvent{
					ExternalID: m.ID,
					SenderID:   m.From,
					SenderName: names[m.From],
					Body:       m.body(),
					Type:       messageType(m.Type),
					Timestamp:  parseUnix(m.Timestamp),
				})
			}
			for _, s := range v.Statuses {
				b.Statuses = append(b.Statuses, ingest.StatusEvent{
					CorrelationID: s.ID,
					RecipientID:   s.RecipientID,
					Status:        s.Status,
					Timestamp:     parseUnix(s.Timestamp),
				})
			}
		}
	}
	return b, nil
}

// body renders a message as plain text. Types without a textual rendering
// return "" and are stored with the placeholder body.
func (m Message) body() string {
	switch m.Type {
	case "text", "":
		if m.Text != nil {
			return m.Text.Body
		}
	case "image":
		return labelled("image", mediaField(m.Image, func(md *Media) string { return md.Caption }))
	case "video":
		return labelled("video", mediaField(m.Video, func(md *Media) string { return md.Caption }))
	case "audio":
		return "[audio]"
	case "document":
		return labelled("document", mediaField(m.Document, func(md *Media) string {
			if md.Filename != "" {
				return md.Filename
			}
			return md.Caption
		}))
	case "sticker":
		return "[sticker]"
	case "location":
		if m.Location == nil {
			return "[location]"
		}
		if m.Location.Name != "" {
			return labelled("location", m.Location.Name)
		}
		return labelled("location", strconv.FormatFloat(m.Location.Latitude, 'f', -1, 64)+","+
			strconv.FormatFloat(m.Location.Longitude, 'f', -1, 64))
	case "button":
		if m.Button != nil {
			return m.Button.Text
		}
	case "interactive":
		if m.Interactive == nil {
			return ""
		}
		if r := m.Interactive.ButtonReply; r != nil {
			return r.Title
		}
		if r := m.Interactive.ListReply; r != nil {
			return r.Title
		}
	case "reaction":
		if m.Reaction != nil && m.Reaction.Emoji != "" {
			return labelled("reaction", m.Reaction.Emoji)
		}
	}
	return ""
}

func mediaField(md *Media, get func(*Media) string) string {
	if md == nil {
		return ""
	}
	return get(md)
}

func labelled(kind, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return "[" + kind + "]"
	}
	return "[" + kind + "] " + detail
}

func messageType(t string) string {
	if t == "" {
		return "text"
	}
	return t
}

// parseUnix parses a unix-seconds string. Invalid values yield the zero time,
// which ingestion replaces with the receive time.
func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
