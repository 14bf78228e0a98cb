package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const statusColumns = `
	s.id, s.user_id, s.content, s.content_type, s.media_url, s.created_at, s.expires_at,
	COALESCE(u.username, ''), COALESCE(u.profile_picture, '')`

func scanStatus(s scanner) (*StatusUpdate, error) {
	st := &StatusUpdate{}
	err := s.Scan(&st.ID, &st.UserID, &st.Content, &st.ContentType, &st.MediaURL,
		&st.CreatedAt, &st.ExpiresAt, &st.Owner.Username, &st.Owner.ProfilePicture)
	if err != nil {
		return nil, err
	}
	st.Owner.ID = st.UserID
	return st, nil
}

// CreateStatus persists a status update.
func (db *DB) CreateStatus(ctx context.Context, ns NewStatus) (*StatusUpdate, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	contentType := ns.ContentType
	if contentType == "" {
		contentType = "text"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureUser(ctx, tx, ns.UserID, now); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO statuses (id, user_id, content, content_type, media_url, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ns.UserID, ns.Content, contentType, ns.MediaURL, now, ns.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetStatus(ctx, id)
}

// GetStatus returns a status update with its viewers, expired or not.
func (db *DB) GetStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	row := db.QueryRowContext(ctx, `SELECT `+statusColumns+`
		FROM statuses s LEFT JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id)
	st, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	st.Viewers, err = db.StatusViewers(ctx, id)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListActiveStatuses returns statuses that have not expired at now, newest
// first, with their viewers.
func (db *DB) ListActiveStatuses(ctx context.Context, now time.Time) ([]StatusUpdate, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+statusColumns+`
		FROM statuses s LEFT JOIN users u ON u.id = s.user_id
		WHERE s.expires_at > ?
		ORDER BY s.created_at DESC, s.rowid DESC`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	var out []StatusUpdate
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, *st)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}

	for i := range out {
		out[i].Viewers, err = db.StatusViewers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StatusViewers returns the users who viewed a status, in view order.
func (db *DB) StatusViewers(ctx context.Context, statusID string) ([]Participant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.viewer_id, COALESCE(u.username, ''), COALESCE(u.profile_picture, '')
		FROM status_viewers v LEFT JOIN users u ON u.id = v.viewer_id
		WHERE v.status_id = ?
		ORDER BY v.viewed_at, v.rowid`, statusID)
	if err != nil {
		return nil, fmt.Errorf("list viewers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.Username, &p.ProfilePicture); err != nil {
			return nil, fmt.Errorf("scan viewer: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddStatusViewer records viewerID as a viewer of an unexpired status. It
// reports whether this was the viewer's first view, and the status owner.
func (db *DB) AddStatusViewer(ctx context.Context, statusID, viewerID string, now time.Time) (bool, string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM statuses WHERE id = ? AND expires_at > ?`,
		statusID, now.UnixMilli()).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", ErrNotFound
	}
	if err != nil {
		return false, "", fmt.Errorf("select status: %w", err)
	}

	if err := ensureUser(ctx, tx, viewerID, now.UnixMilli()); err != nil {
		return false, "", err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO status_viewers (status_id, viewer_id, viewed_at) VALUES (?, ?, ?)`,
		statusID, viewerID, now.UnixMilli())
	if err != nil {
		return false, "", fmt.Errorf("insert viewer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, "", fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, "", fmt.Errorf("commit: %w", err)
	}
	return n > 0, owner, nil
}

// DeleteStatus removes a status owned by requesterID.
func (db *DB) DeleteStatus(ctx context.Context, id, requesterID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM statuses WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select status: %w", err)
	}
	if owner != requesterID {
		return ErrNotAuthorized
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM statuses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PurgeExpiredStatuses deletes statuses that expired before now.
func (db *DB) PurgeExpiredStatuses(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM statuses WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge statuses: %w", err)
	}
	return res.RowsAffected()
}
