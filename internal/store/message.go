package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/wphook/internal/status"
)

const messageColumns = `id, external_id, correlation_id, conversation_key, sender_name, body,
	message_type, direction, status, timestamp, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*Message, error) {
	var m Message
	if err := s.Scan(&m.ID, &m.ExternalID, &m.CorrelationID, &m.ConversationKey, &m.SenderName, &m.Body,
		&m.MessageType, &m.Direction, &m.Status, &m.Timestamp, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// InsertMessage stores m unless a message with the same external id already
// exists. It reports whether a row was created; m.ID is set when it was.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (bool, error) {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.CreatedAt
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (external_id, correlation_id, conversation_key, sender_name, body,
			message_type, direction, status, timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		m.ExternalID, m.CorrelationID, m.ConversationKey, m.SenderName, m.Body,
		m.MessageType, m.Direction, m.Status, m.Timestamp, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return false, err
	}
	return true, nil
}

// GetMessageByExternalID returns ErrNotFound when no message matches.
func (db *DB) GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetMessageByCorrelationID resolves the message a provider status refers to.
// When several messages share a correlation id the oldest one wins.
func (db *DB) GetMessageByCorrelationID(ctx context.Context, correlationID string) (*Message, error) {
	m, err := scanMessage(db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE correlation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, correlationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListMessages returns one page of a conversation, newest first.
func (db *DB) ListMessages(ctx context.Context, conversationKey string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ?
		ORDER BY timestamp DESC, created_at DESC, id DESC
		LIMIT ? OFFSET ?`, conversationKey, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// CompareAndSwapStatus moves message id from one status to another only if it
// still holds from. It reports whether the swap happened.
func (db *DB) CompareAndSwapStatus(ctx context.Context, id int64, from, to status.Status) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now().UnixMilli(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkConversationRead sets every inbound message of the conversation that is
// not yet read to read and returns how many changed.
func (db *DB) MarkConversationRead(ctx context.Context, conversationKey string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE conversation_key = ? AND direction = ? AND status <> ?`,
		status.Read, time.Now().UnixMilli(), conversationKey, Inbound, status.Read)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatusUpdatesSince returns outbound messages of a conversation whose row
// changed after since (unix ms), most recently changed first.
func (db *DB) StatusUpdatesSince(ctx context.Context, conversationKey string, since int64) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ? AND direction = ? AND updated_at > ?
		ORDER BY updated_at DESC, id DESC`, conversationKey, Outbound, since)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// Summaries computes the latest message and unread count of every
// conversation that has at least one message.
func (db *DB) Summaries(ctx context.Context) (map[string]Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.conversation_key, m.body, m.timestamp,
			(SELECT COUNT(*) FROM messages u
			 WHERE u.conversation_key = m.conversation_key AND u.direction = ? AND u.status <> ?)
		FROM messages m
		WHERE m.id = (
			SELECT l.id FROM messages l
			WHERE l.conversation_key = m.conversation_key
			ORDER BY l.timestamp DESC, l.created_at DESC, l.id DESC
			LIMIT 1)`, Inbound, status.Read)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Summary)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ConversationKey, &s.LastMessage, &s.LastMessageTime, &s.UnreadCount); err != nil {
			return nil, err
		}
		out[s.ConversationKey] = s
	}
	return out, rows.Err()
}

// Stats returns global message counts.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(DISTINCT conversation_key),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'read' THEN 1 ELSE 0 END), 0)
		FROM messages`).Scan(&s.TotalMessages, &s.TotalConversations, &s.Sent, &s.Delivered, &s.Read)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
