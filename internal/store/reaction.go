package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reaction toggle outcomes.
const (
	ReactionAdded    = "added"
	ReactionRemoved  = "removed"
	ReactionReplaced = "replaced"
)

// ReactionResult is the outcome of ToggleReaction.
type ReactionResult struct {
	MessageID  string
	SenderID   string
	ReceiverID string
	Action     string
	Reactions  []Reaction
}

// ToggleReaction applies userID's emoji to a message: adds it when the user
// has no reaction, removes it when it is the same emoji, replaces it
// otherwise. The whole read-modify-write runs in one immediate transaction.
func (db *DB) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*ReactionResult, error) {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &ReactionResult{MessageID: messageID}
	err = tx.QueryRowContext(ctx, `SELECT sender_id, receiver_id FROM messages WHERE id = ?`, messageID).
		Scan(&res.SenderID, &res.ReceiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx, `SELECT emoji FROM reactions WHERE message_id = ? AND user_id = ?`, messageID, userID).
		Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
			messageID, userID, emoji, now)
		res.Action = ReactionAdded
	case err != nil:
		return nil, fmt.Errorf("select reaction: %w", err)
	case current == emoji:
		_, err = tx.ExecContext(ctx, `DELETE FROM reactions WHERE message_id = ? AND user_id = ?`, messageID, userID)
		res.Action = ReactionRemoved
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE reactions SET emoji = ?, created_at = ? WHERE message_id = ? AND user_id = ?`,
			emoji, now, messageID, userID)
		res.Action = ReactionReplaced
	}
	if err != nil {
		return nil, fmt.Errorf("%s reaction: %w", res.Action, err)
	}

	if err := ensureUser(ctx, tx, userID, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET version = version + 1 WHERE id = ?`, messageID); err != nil {
		return nil, fmt.Errorf("bump version: %w", err)
	}

	res.Reactions, err = listReactions(ctx, tx, messageID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func listReactions(ctx context.Context, q querier, messageID string) ([]Reaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.user_id, COALESCE(u.username, ''), r.emoji
		FROM reactions r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.message_id = ?
		ORDER BY r.created_at, r.rowid`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.UserID, &r.Username, &r.Emoji); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func conversationReactions(ctx context.Context, q querier, conversationID string) (map[string][]Reaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.message_id, r.user_id, COALESCE(u.username, ''), r.emoji
		FROM reactions r
		JOIN messages m ON m.id = r.message_id
		LEFT JOIN users u ON u.id = r.user_id
		WHERE m.conversation_id = ?
		ORDER BY r.created_at, r.rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]Reaction)
	for rows.Next() {
		var (
			msgID string
			r     Reaction
		)
		if err := rows.Scan(&msgID, &r.UserID, &r.Username, &r.Emoji); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out[msgID] = append(out[msgID], r)
	}
	return out, rows.Err()
}
