package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

// UpsertMemoryItem inserts a memory item or updates the value and expiry
// of the existing (kind, key) pair.
func (s *SQLiteStore) UpsertMemoryItem(ctx context.Context, item model.MemoryItem) error {
	kind := strings.TrimSpace(item.Kind)
	key := strings.TrimSpace(item.Key)
	if kind == "" || key == "" {
		return apperr.Validationf("store.UpsertMemoryItem", "memory kind and key must not be empty")
	}

	now := time.Now().UTC()
	var expires any
	if item.ExpiresAt != nil {
		expires = item.ExpiresAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_items (kind, key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		kind, key, item.Value, expires, now, now,
	)
	if err != nil {
		return classify(fmt.Sprintf("upserting memory item %s/%s", kind, key), err)
	}
	return nil
}

// ListMemoryItems returns memory items ordered by kind then key. Expired
// items are omitted unless includeExpired is set.
func (s *SQLiteStore) ListMemoryItems(ctx context.Context, includeExpired bool) ([]model.MemoryItem, error) {
	query := "SELECT id, kind, key, value, expires_at, created_at, updated_at FROM memory_items"
	var args []any
	if !includeExpired {
		query += " WHERE expires_at IS NULL OR expires_at > ?"
		args = append(args, time.Now().UTC())
	}
	query += " ORDER BY kind, key"

	var items []model.MemoryItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("querying memory items: %w", err)
	}
	return items, nil
}

// DeleteMemoryItem removes one memory item.
func (s *SQLiteStore) DeleteMemoryItem(ctx context.Context, kind, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_items WHERE kind = ? AND key = ?", kind, key)
	if err != nil {
		return fmt.Errorf("deleting memory item %s/%s: %w", kind, key, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("store.DeleteMemoryItem", "memory item %s/%s not found", kind, key)
	}
	return nil
}
