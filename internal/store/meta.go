package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Sync marker keys.
const (
	metaLastSyncedAt = "last_synced_at"
	metaUserID       = "user_id"
)

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetLastSyncedAt records the completion time of the last successful sync.
func (s *Store) SetLastSyncedAt(ctx context.Context, at time.Time) error {
	return s.setMeta(ctx, metaLastSyncedAt, at.UTC().Format(timeLayout))
}

// LastSyncedAt returns the last successful sync time, or the zero time if no
// sync has completed yet.
func (s *Store) LastSyncedAt(ctx context.Context) (time.Time, error) {
	value, err := s.getMeta(ctx, metaLastSyncedAt)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last_synced_at %q: %w", value, err)
	}
	return at, nil
}

// SetUserID records which authenticated user the cached data belongs to.
func (s *Store) SetUserID(ctx context.Context, userID string) error {
	return s.setMeta(ctx, metaUserID, userID)
}

// UserID returns the owner of the cached data, or "" if none is recorded.
func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.getMeta(ctx, metaUserID)
}

// EnsureOwner checks the cached data against the authenticated user. If the
// cache belongs to a different user it is wiped before the new owner is
// recorded, so a login never sees another user's residue.
func (s *Store) EnsureOwner(ctx context.Context, userID string) error {
	current, err := s.UserID(ctx)
	if err != nil {
		return err
	}
	if current != "" && current != userID {
		if err := s.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to invalidate stale cache: %w", err)
		}
	}
	return s.SetUserID(ctx, userID)
}
