package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/store"
	"go.uber.org/zap"
)

// CreateContactRequest holds the fields accepted when creating a contact.
type CreateContactRequest struct {
	WaID           string
	Name           string
	ProfilePicture string
	Notes          string
	Labels         []string
}

func (s *Service) CreateContact(ctx context.Context, req CreateContactRequest) (*store.Contact, error) {
	waID := strings.TrimSpace(req.WaID)
	name := strings.TrimSpace(req.Name)
	if waID == "" || name == "" {
		return nil, fmt.Errorf("%w: wa_id and name are required", ErrInvalid)
	}

	c := &store.Contact{
		WaID:           waID,
		Name:           name,
		ProfilePicture: req.ProfilePicture,
		Notes:          req.Notes,
		Labels:         store.Labels(req.Labels),
	}
	if err := s.db.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	s.contactChanged(bus.KindContactUpdated, waID)
	return c, nil
}

func (s *Service) GetContact(ctx context.Context, waID string) (*store.Contact, error) {
	return s.db.GetContact(ctx, waID)
}

// UpdateContact edits profile fields. The wa_id itself cannot change.
func (s *Service) UpdateContact(ctx context.Context, waID string, u store.ContactUpdate) (*store.Contact, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	c, err := s.db.UpdateContact(ctx, waID, u)
	if err != nil {
		return nil, err
	}
	s.contactChanged(bus.KindContactUpdated, waID)
	return c, nil
}

// Toggle sets one of the archive, block, pin or mute flags.
func (s *Service) Toggle(ctx context.Context, waID, action string, value bool, muteUntil *time.Time) (*store.Contact, error) {
	flag, err := store.ParseFlag(action)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c, err := s.db.SetFlag(ctx, waID, flag, value, muteUntil)
	if err != nil {
		return nil, err
	}
	s.contactChanged(bus.KindContactUpdated, waID)
	return c, nil
}

// SetPresence records a contact's presence. Without lastSeen the stored value
// is kept.
func (s *Service) SetPresence(ctx context.Context, waID, presence string, lastSeen *time.Time) (*store.Contact, error) {
	if presence == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalid)
	}
	p := store.Presence(presence)
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, presence)
	}
	if lastSeen == nil {
		current, err := s.db.GetContact(ctx, waID)
		if err != nil {
			return nil, err
		}
		lastSeen = current.LastSeen
	}
	return s.presence(ctx, waID, p, lastSeen)
}

// GoOnline marks a contact online and clears its last-seen time.
func (s *Service) GoOnline(ctx context.Context, waID string) (*store.Contact, error) {
	return s.presence(ctx, waID, store.PresenceOnline, nil)
}

// GoOffline marks a contact as last seen now.
func (s *Service) GoOffline(ctx context.Context, waID string) (*store.Contact, error) {
	now := time.Now()
	return s.presence(ctx, waID, store.PresenceLastSeen, &now)
}

func (s *Service) presence(ctx context.Context, waID string, p store.Presence, lastSeen *time.Time) (*store.Contact, error) {
	c, err := s.db.SetPresence(ctx, waID, p, lastSeen)
	if err != nil {
		return nil, err
	}
	s.contactChanged(bus.KindContactUpdated, waID)
	return c, nil
}

// DeleteContact removes a contact and its whole conversation. Pending
// simulated statuses for it are cancelled through the contact.deleted event.
func (s *Service) DeleteContact(ctx context.Context, waID string) (int64, error) {
	removed, err := s.db.DeleteContact(ctx, waID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to delete contact", zap.Error(err), zap.String("wa_id", waID))
		}
		return 0, err
	}
	s.logger.Info("contact deleted", zap.String("wa_id", waID), zap.Int64("messages", removed))
	s.contactChanged(bus.KindContactDeleted, waID)
	return removed, nil
}

func (s *Service) contactChanged(kind, waID string) {
	s.publish(kind, bus.ContactChanged{WaID: waID})
}
