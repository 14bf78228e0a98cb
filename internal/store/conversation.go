package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// findOrCreateConversation returns the id of the conversation between a and
// b, creating it if needed. Two concurrent callers for the same pair always
// end up with the same row.
func findOrCreateConversation(ctx context.Context, q querier, a, b string, now int64) (string, error) {
	a, b = NormalizePair(a, b)
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(participant_a, participant_b) DO NOTHING`,
		uuid.NewString(), a, b, now, now)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	var id string
	err = q.QueryRowContext(ctx, `
		SELECT id FROM conversations WHERE participant_a = ? AND participant_b = ?`, a, b,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("select conversation: %w", err)
	}
	return id, nil
}

// GetConversation returns a conversation by id.
func (db *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return getConversation(ctx, db, id)
}

// FindConversation returns the conversation between two users.
func (db *DB) FindConversation(ctx context.Context, a, b string) (*Conversation, error) {
	a, b = NormalizePair(a, b)
	var id string
	err := db.QueryRowContext(ctx, `
		SELECT id FROM conversations WHERE participant_a = ? AND participant_b = ?`, a, b,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return getConversation(ctx, db, id)
}

func getConversation(ctx context.Context, q querier, id string) (*Conversation, error) {
	c := &Conversation{}
	err := q.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, COALESCE(last_message_id, ''), unread_count, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns the conversations userID participates in,
// most recently updated first.
func (db *DB) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.participant_a, c.participant_b, COALESCE(c.last_message_id, ''),
			c.unread_count, c.created_at, c.updated_at,
			COALESCE(ua.username, ''), COALESCE(ua.profile_picture, ''),
			COALESCE(ub.username, ''), COALESCE(ub.profile_picture, ''),
			COALESCE(m.sender_id, ''), COALESCE(m.receiver_id, ''), COALESCE(m.content, ''),
			COALESCE(m.content_type, ''), COALESCE(m.media_url, ''), COALESCE(m.status, ''),
			COALESCE(m.version, 0), COALESCE(m.created_at, 0)
		FROM conversations c
		LEFT JOIN users ua ON ua.id = c.participant_a
		LEFT JOIN users ub ON ub.id = c.participant_b
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY c.updated_at DESC, c.rowid DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var views []ConversationView
	for rows.Next() {
		var (
			v      ConversationView
			pa, pb Participant
			m      Message
		)
		if err := rows.Scan(
			&v.ID, &v.ParticipantA, &v.ParticipantB, &v.LastMessageID,
			&v.UnreadCount, &v.CreatedAt, &v.UpdatedAt,
			&pa.Username, &pa.ProfilePicture, &pb.Username, &pb.ProfilePicture,
			&m.SenderID, &m.ReceiverID, &m.Content, &m.ContentType, &m.MediaURL, &m.Status,
			&m.Version, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		pa.ID, pb.ID = v.ParticipantA, v.ParticipantB
		v.Participants = []Participant{pa, pb}
		if v.LastMessageID != "" {
			m.ID = v.LastMessageID
			m.ConversationID = v.ID
			v.LastMessage = &m
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
