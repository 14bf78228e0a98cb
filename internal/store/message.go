package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatd/internal/status"
)

const messageViewColumns = `
	m.id, m.conversation_id, m.sender_id, m.receiver_id, m.content, m.content_type,
	m.media_url, m.status, m.version, m.created_at,
	COALESCE(us.username, ''), COALESCE(us.profile_picture, ''),
	COALESCE(ur.username, ''), COALESCE(ur.profile_picture, '')`

const messageViewJoins = `
	FROM messages m
	LEFT JOIN users us ON us.id = m.sender_id
	LEFT JOIN users ur ON ur.id = m.receiver_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessageView(s scanner) (*MessageView, error) {
	v := &MessageView{}
	err := s.Scan(
		&v.ID, &v.ConversationID, &v.SenderID, &v.ReceiverID, &v.Content, &v.ContentType,
		&v.MediaURL, &v.Status, &v.Version, &v.CreatedAt,
		&v.Sender.Username, &v.Sender.ProfilePicture,
		&v.Receiver.Username, &v.Receiver.ProfilePicture,
	)
	if err != nil {
		return nil, err
	}
	v.Sender.ID = v.SenderID
	v.Receiver.ID = v.ReceiverID
	return v, nil
}

// CreateMessage persists a new message with status sent. In one transaction
// it finds or creates the conversation, inserts the message, points the
// conversation's last message at it and bumps the unread count unless the
// message is addressed to its own sender.
func (db *DB) CreateMessage(ctx context.Context, nm NewMessage) (*MessageView, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	contentType := nm.ContentType
	if contentType == "" {
		contentType = "text"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureUser(ctx, tx, nm.SenderID, now); err != nil {
		return nil, err
	}
	if err := ensureUser(ctx, tx, nm.ReceiverID, now); err != nil {
		return nil, err
	}
	convID, err := findOrCreateConversation(ctx, tx, nm.SenderID, nm.ReceiverID, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, content_type, media_url, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id, convID, nm.SenderID, nm.ReceiverID, nm.Content, contentType, nm.MediaURL, string(status.Sent), now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	increment := 1
	if nm.SenderID == nm.ReceiverID {
		increment = 0
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, updated_at = ?, unread_count = unread_count + ?
		WHERE id = ?`,
		id, now, increment, convID)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetMessage(ctx, id)
}

// GetMessage returns a message with participants and reactions resolved.
func (db *DB) GetMessage(ctx context.Context, id string) (*MessageView, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageViewColumns+messageViewJoins+` WHERE m.id = ?`, id)
	v, err := scanMessageView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	reactions, err := listReactions(ctx, db, id)
	if err != nil {
		return nil, err
	}
	v.Reactions = reactions
	return v, nil
}

// ListMessages returns a conversation's messages oldest first.
func (db *DB) ListMessages(ctx context.Context, conversationID string) ([]MessageView, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+messageViewColumns+messageViewJoins+`
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageView
	for rows.Next() {
		v, err := scanMessageView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byMessage, err := conversationReactions(ctx, db, conversationID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Reactions = byMessage[msgs[i].ID]
	}
	return msgs, nil
}

// AdvanceStatus moves a message forward to the given status. It reports
// false when the message is already at or past it; status never regresses.
func (db *DB) AdvanceStatus(ctx context.Context, id string, to status.Status) (bool, error) {
	preds := status.Predecessors(to)
	if len(preds) == 0 {
		return false, nil
	}
	args := []any{string(to), id}
	for _, p := range preds {
		args = append(args, string(p))
	}
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET status = ?, version = version + 1
		WHERE id = ? AND status IN (`+placeholders(len(preds))+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("advance status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// advance moves the selected messages addressed to receiverID forward to
// status to and returns the ones it changed. filter is appended to the
// WHERE clause.
func advance(ctx context.Context, tx *sql.Tx, to status.Status, receiverID, filter string, filterArgs ...any) ([]Transition, error) {
	preds := status.Predecessors(to)
	where := `receiver_id = ? AND status IN (` + placeholders(len(preds)) + `) AND ` + filter
	args := []any{receiverID}
	for _, p := range preds {
		args = append(args, string(p))
	}
	args = append(args, filterArgs...)

	rows, err := tx.QueryContext(ctx, `SELECT id, sender_id FROM messages WHERE `+where+` ORDER BY created_at, rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	var marks []Transition
	for rows.Next() {
		var m Transition
		if err := rows.Scan(&m.MessageID, &m.SenderID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		marks = append(marks, m)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	if len(marks) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE messages SET status = ?, version = version + 1 WHERE `+where,
		append([]any{string(to)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("advance to %s: %w", to, err)
	}
	return marks, nil
}

// readBatch bounds the ids bound into one statement, well under SQLite's
// host parameter limit.
const readBatch = 500

// MarkRead transitions the given messages to read where receiverID is the
// receiver and the message is not read yet. Ids that do not qualify are
// skipped silently. Large id lists are applied in batches inside a single
// transaction.
func (db *DB) MarkRead(ctx context.Context, receiverID string, ids []string) ([]Transition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var marks []Transition
	for start := 0; start < len(ids); start += readBatch {
		batch := ids[start:min(start+readBatch, len(ids))]
		idArgs := make([]any, len(batch))
		for i, id := range batch {
			idArgs[i] = id
		}
		m, err := advance(ctx, tx, status.Read, receiverID, `id IN (`+placeholders(len(batch))+`)`, idArgs...)
		if err != nil {
			return nil, err
		}
		marks = append(marks, m...)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return marks, nil
}

// ReadConversation marks every unread message addressed to receiverID in
// the conversation as read and resets the unread count, atomically.
func (db *DB) ReadConversation(ctx context.Context, conversationID, receiverID string) ([]Transition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	marks, err := advance(ctx, tx, status.Read, receiverID, `conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET unread_count = 0 WHERE id = ?`, conversationID); err != nil {
		return nil, fmt.Errorf("reset unread: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return marks, nil
}

// MarkDelivered moves every message addressed to receiverID that is still
// sent to delivered. It is the catch-up path for messages that arrived
// while the receiver was offline.
func (db *DB) MarkDelivered(ctx context.Context, receiverID string) ([]Transition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	marks, err := advance(ctx, tx, status.Delivered, receiverID, `1 = 1`)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return marks, nil
}

// DeleteMessage removes a message owned by requesterID and repoints the
// conversation's last message to the newest remaining one.
func (db *DB) DeleteMessage(ctx context.Context, id, requesterID string) (*Message, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := &Message{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, content_type, media_url, status, version, created_at
		FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.ContentType,
		&m.MediaURL, &m.Status, &m.Version, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	if m.SenderID != requesterID {
		return nil, ErrNotAuthorized
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}

	decrement := 0
	if m.Status != status.Read && m.SenderID != m.ReceiverID {
		decrement = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET
			last_message_id = (
				SELECT id FROM messages WHERE conversation_id = ?
				ORDER BY created_at DESC, rowid DESC LIMIT 1),
			unread_count = MAX(unread_count - ?, 0)
		WHERE id = ?`,
		m.ConversationID, decrement, m.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("repoint conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}
