// Package conversation is the read and write surface used by the HTTP API:
// paging through a conversation, sending, and managing contacts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/ranking"
	"github.com/matheus3301/wphook/internal/status"
	"github.com/matheus3301/wphook/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	// LocalIDPrefix marks ids generated for messages sent from this system.
	LocalIDPrefix = "local_"
)

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid request")
	// ErrNotFound and ErrConflict are the store errors, re-exported so callers
	// need not import the store.
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// Scheduler arms simulated status transitions for a sent message.
// Implemented by *simulator.Simulator.
type Scheduler interface {
	Schedule(msg store.Message)
}

type Service struct {
	db          *store.DB
	bus         *bus.Bus
	scheduler   Scheduler
	displayName string
	logger      *zap.Logger
}

func NewService(db *store.DB, b *bus.Bus, scheduler Scheduler, account config.AccountConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := account.DisplayName
	if name == "" {
		name = "You"
	}
	return &Service{
		db:          db,
		bus:         b,
		scheduler:   scheduler,
		displayName: name,
		logger:      logger,
	}
}

// ListMessages returns one page of a conversation in reading order (oldest
// first). Page 1 holds the most recent messages. Opening a conversation marks
// all of its inbound messages read, not only those on the page.
func (s *Service) ListMessages(ctx context.Context, conversationKey string, page, pageSize int) ([]store.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	msgs, err := s.db.ListMessages(ctx, conversationKey, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(msgs)

	marked, err := s.db.MarkConversationRead(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if marked > 0 {
		s.publish(bus.KindConversationRead, bus.ConversationRead{ConversationKey: conversationKey, Marked: marked})
	}

	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}

// ListConversations returns the contacts matching f merged with their message
// summaries, ranked for display.
func (s *Service) ListConversations(ctx context.Context, f store.ContactFilter) ([]ranking.Conversation, error) {
	contacts, err := s.db.ListContacts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	summaries, err := s.db.Summaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("summaries: %w", err)
	}
	return ranking.Rank(contacts, summaries), nil
}

// SendRequest is a message sent from this system to a contact.
type SendRequest struct {
	WaID string
	Name string
	Text string
}

// Send records an outbound message at status sent and hands it to the
// scheduler. It returns without waiting for any status change.
func (s *Service) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	waID := strings.TrimSpace(req.WaID)
	if waID == "" || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: wa_id and text are required", ErrInvalid)
	}

	if err := s.db.EnsureContact(ctx, waID, ""); err != nil {
		return nil, fmt.Errorf("ensure contact: %w", err)
	}

	id := LocalIDPrefix + uuid.NewString()
	sender := req.Name
	if sender == "" {
		sender = s.displayName
	}
	msg := &store.Message{
		ExternalID:      id,
		CorrelationID:   id,
		ConversationKey: waID,
		SenderName:      sender,
		Body:            req.Text,
		MessageType:     "text",
		Direction:       store.Outbound,
		Status:          status.Sent,
		Timestamp:       time.Now().UnixMilli(),
	}
	if _, err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.logger.Info("message sent", zap.String("external_id", id), zap.String("wa_id", waID))
	s.publish(bus.KindMessageCreated, bus.MessageCreated{
		ExternalID:      msg.ExternalID,
		CorrelationID:   msg.CorrelationID,
		ConversationKey: msg.ConversationKey,
		Direction:       string(msg.Direction),
		Status:          string(msg.Status),
	})
	if s.scheduler != nil {
		s.scheduler.Schedule(*msg)
	}
	return msg, nil
}

// StatusUpdates returns outbound messages of a conversation whose status
// changed after since. A zero since returns every outbound message.
func (s *Service) StatusUpdates(ctx context.Context, conversationKey string, since time.Time) ([]store.Message, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	msgs, err := s.db.StatusUpdatesSince(ctx, conversationKey, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("status updates: %w", err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}

// Stats returns global message counts.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.db.Stats(ctx)
}

func (s *Service) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
