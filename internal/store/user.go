package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ensureUser creates a bare user row if none exists. Profile fields are
// owned by the auth collaborator and filled by UpsertProfile.
func ensureUser(ctx context.Context, q querier, id string, now int64) error {
	_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, id, now)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// UpsertProfile inserts or updates a user's display fields.
func (db *DB) UpsertProfile(ctx context.Context, id, username, profilePicture string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, profile_picture, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			profile_picture = excluded.profile_picture`,
		id, username, profilePicture, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// SetPresence persists the online flag and last-seen time for a user.
func (db *DB) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, is_online, last_seen, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_online = excluded.is_online,
			last_seen = excluded.last_seen`,
		userID, online, at.UnixMilli(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// ResetOnline clears the online flag on every user. A daemon that is just
// starting holds no connections, so any flag left set is from a previous
// process.
func (db *DB) ResetOnline(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `UPDATE users SET is_online = 0 WHERE is_online = 1`); err != nil {
		return fmt.Errorf("reset online: %w", err)
	}
	return nil
}

// LastSeen returns the persisted last-seen time, or the zero time when the
// user has never been seen.
func (db *DB) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	var ms int64
	err := db.QueryRowContext(ctx, `SELECT last_seen FROM users WHERE id = ?`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last seen: %w", err)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := db.QueryRowContext(ctx, `
		SELECT id, username, profile_picture, is_online, last_seen
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.ProfilePicture, &u.IsOnline, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
