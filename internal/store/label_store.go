package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/inbox-companion/internal/model"
)

// GetLabels retrieves all labels ordered by name.
func (s *SQLiteStore) GetLabels(ctx context.Context) ([]model.Label, error) {
	var labels []model.Label
	err := s.db.SelectContext(ctx, &labels,
		"SELECT id, name, color, created_at FROM labels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	return labels, nil
}

// GetMessageLabels retrieves the labels attached to a message.
func (s *SQLiteStore) GetMessageLabels(ctx context.Context, messageID int64) ([]model.Label, error) {
	var labels []model.Label
	err := s.db.SelectContext(ctx, &labels, `
		SELECT l.id, l.name, l.color, l.created_at
		FROM labels l
		JOIN message_labels ml ON ml.label_id = l.id
		WHERE ml.message_id = ?
		ORDER BY l.name`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying labels for message %d: %w", messageID, err)
	}
	return labels, nil
}

// replaceMessageLabels drops every association of messageID and attaches
// the given label names, creating missing labels. Must run inside the
// caller's transaction.
func replaceMessageLabels(
	ctx context.Context,
	tx *sqlx.Tx,
	messageID int64,
	names []string,
	now time.Time,
) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message_labels WHERE message_id = ?", messageID,
	); err != nil {
		return classify(fmt.Sprintf("clearing labels for message %d", messageID), err)
	}

	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO labels (name, color, created_at) VALUES (?, ?, ?)
			ON CONFLICT (name) DO NOTHING`,
			name, model.LabelColor(name), now,
		); err != nil {
			return classify(fmt.Sprintf("creating label %q", name), err)
		}

		var labelID int64
		if err := tx.GetContext(ctx, &labelID, "SELECT id FROM labels WHERE name = ?", name); err != nil {
			return classify(fmt.Sprintf("resolving label %q", name), err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?, ?)",
			messageID, labelID,
		); err != nil {
			return classify(fmt.Sprintf("attaching label %q to message %d", name, messageID), err)
		}
	}

	return nil
}
