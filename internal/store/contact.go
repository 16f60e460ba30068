package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateContact inserts c. A contact that only exists as an implicit
// placeholder is claimed and takes c's profile; any other existing contact
// yields ErrConflict.
func (db *DB) CreateContact(ctx context.Context, c *Contact) error {
	if c.Labels == nil {
		c.Labels = Labels{}
	}
	if c.Presence == "" {
		c.Presence = PresenceOffline
	}
	c.Implicit = false

	return db.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Contact
		err := tx.Where("wa_id = ?", c.WaID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(c).Error
		case err != nil:
			return err
		case !existing.Implicit:
			return ErrConflict
		}

		if err := tx.Model(&existing).Updates(map[string]any{
			"name":            c.Name,
			"profile_picture": c.ProfilePicture,
			"notes":           c.Notes,
			"labels":          c.Labels,
			"is_implicit":     false,
		}).Error; err != nil {
			return err
		}
		return tx.Where("wa_id = ?", c.WaID).Take(c).Error
	})
}

// EnsureContact creates an implicit placeholder for waID unless a contact
// already exists. It never modifies an existing contact.
func (db *DB) EnsureContact(ctx context.Context, waID, name string) error {
	if name == "" {
		name = waID
	}
	c := &Contact{
		WaID:     waID,
		Name:     name,
		Presence: PresenceOffline,
		Labels:   Labels{},
		Implicit: true,
	}
	return db.orm.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wa_id"}}, DoNothing: true}).
		Create(c).Error
}

// GetContact returns ErrNotFound when waID is unknown.
func (db *DB) GetContact(ctx context.Context, waID string) (*Contact, error) {
	var c Contact
	err := db.orm.WithContext(ctx).Where("wa_id = ?", waID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns the contacts matching f ordered by wa_id.
func (db *DB) ListContacts(ctx context.Context, f ContactFilter) ([]Contact, error) {
	q := db.orm.WithContext(ctx).Model(&Contact{})
	if f.Archived != nil {
		q = q.Where("is_archived = ?", *f.Archived)
	}
	if f.Blocked != nil {
		q = q.Where("is_blocked = ?", *f.Blocked)
	}
	if f.Pinned != nil {
		q = q.Where("is_pinned = ?", *f.Pinned)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR wa_id LIKE ?", like, like)
	}

	var contacts []Contact
	if err := q.Order("wa_id").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// UpdateContact applies the non-nil fields of u. An edited contact is no
// longer implicit.
func (db *DB) UpdateContact(ctx context.Context, waID string, u ContactUpdate) (*Contact, error) {
	fields := map[string]any{"is_implicit": false}
	if u.Name != nil {
		fields["name"] = *u.Name
	}
	if u.ProfilePicture != nil {
		fields["profile_picture"] = *u.ProfilePicture
	}
	if u.Notes != nil {
		fields["notes"] = *u.Notes
	}
	if u.Labels != nil {
		fields["labels"] = Labels(*u.Labels)
	}
	return db.updateContact(ctx, waID, fields)
}

// SetFlag sets one boolean attribute. For FlagMute, muteUntil is stored when
// muting and cleared when unmuting.
func (db *DB) SetFlag(ctx context.Context, waID string, f Flag, value bool, muteUntil *time.Time) (*Contact, error) {
	fields := map[string]any{f.column(): value}
	if f == FlagMute {
		if value {
			fields["mute_until"] = muteUntil
		} else {
			fields["mute_until"] = nil
		}
	}
	return db.updateContact(ctx, waID, fields)
}

// SetPresence records the contact's presence and last-seen time.
func (db *DB) SetPresence(ctx context.Context, waID string, p Presence, lastSeen *time.Time) (*Contact, error) {
	return db.updateContact(ctx, waID, map[string]any{
		"presence":  p,
		"last_seen": lastSeen,
	})
}

func (db *DB) updateContact(ctx context.Context, waID string, fields map[string]any) (*Contact, error) {
	fields["updated_at"] = time.Now()
	res := db.orm.WithContext(ctx).Model(&Contact{}).Where("wa_id = ?", waID).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return db.GetContact(ctx, waID)
}

// DeleteContact removes the contact and all messages of its conversation in
// one transaction and returns the number of messages removed.
func (db *DB) DeleteContact(ctx context.Context, waID string) (int64, error) {
	var removed int64
	err := db.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM messages WHERE conversation_key = ?", waID)
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Where("wa_id = ?", waID).Delete(&Contact{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
