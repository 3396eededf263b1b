package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

// analysisRow mirrors message_analysis with list columns kept as JSON.
type analysisRow struct {
	MessageID        int64      `db:"message_id"`
	BodyHash         string     `db:"body_hash"`
	Version          int        `db:"version"`
	Lang             string     `db:"lang"`
	Bullets          string     `db:"bullets"`
	KeyActions       string     `db:"key_actions"`
	Urgency          int        `db:"urgency"`
	Importance       int        `db:"importance"`
	Priority         int        `db:"priority"`
	Confidence       float64    `db:"confidence"`
	Truncated        bool       `db:"truncated"`
	Model            string     `db:"model"`
	PromptTokens     int        `db:"prompt_tokens"`
	CompletionTokens int        `db:"completion_tokens"`
	Notes            string     `db:"notes"`
	LastError        string     `db:"last_error"`
	AnalyzedAt       *time.Time `db:"analyzed_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r analysisRow) toModel() (model.MessageAnalysis, error) {
	a := model.MessageAnalysis{
		MessageID:        r.MessageID,
		BodyHash:         r.BodyHash,
		Version:          r.Version,
		Lang:             r.Lang,
		Urgency:          r.Urgency,
		Importance:       r.Importance,
		Priority:         r.Priority,
		Confidence:       r.Confidence,
		Truncated:        r.Truncated,
		Model:            r.Model,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		Notes:            r.Notes,
		LastError:        r.LastError,
		AnalyzedAt:       r.AnalyzedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Bullets), &a.Bullets); err != nil {
		return a, fmt.Errorf("decoding bullets for message %d: %w", r.MessageID, err)
	}
	if err := json.Unmarshal([]byte(r.KeyActions), &a.KeyActions); err != nil {
		return a, fmt.Errorf("decoding key actions for message %d: %w", r.MessageID, err)
	}
	return a, nil
}

// GetAnalysis retrieves the analysis row of a message, including rows
// that only record a failed attempt.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, messageID int64) (*model.MessageAnalysis, error) {
	var row analysisRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM message_analysis WHERE message_id = ?", messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("store.GetAnalysis", "no analysis for message %d", messageID)
		}
		return nil, fmt.Errorf("getting analysis for message %d: %w", messageID, err)
	}

	a, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAnalysis writes a successful analysis and replaces the message's
// labels in one transaction. Any previous last_error is cleared. Labels
// that do not exist yet are created.
func (s *SQLiteStore) UpsertAnalysis(
	ctx context.Context,
	messageID int64,
	a model.MessageAnalysis,
	labels []string,
) error {
	bullets, err := json.Marshal(nonNil(a.Bullets))
	if err != nil {
		return fmt.Errorf("marshaling bullets: %w", err)
	}
	actions, err := json.Marshal(nonNil(a.KeyActions))
	if err != nil {
		return fmt.Errorf("marshaling key actions: %w", err)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message_analysis (
			message_id, body_hash, version, lang, bullets, key_actions,
			urgency, importance, priority, confidence, truncated, model,
			prompt_tokens, completion_tokens, notes, last_error,
			analyzed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			body_hash = excluded.body_hash,
			version = excluded.version,
			lang = excluded.lang,
			bullets = excluded.bullets,
			key_actions = excluded.key_actions,
			urgency = excluded.urgency,
			importance = excluded.importance,
			priority = excluded.priority,
			confidence = excluded.confidence,
			truncated = excluded.truncated,
			model = excluded.model,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			notes = excluded.notes,
			last_error = '',
			analyzed_at = excluded.analyzed_at,
			updated_at = excluded.updated_at`,
		messageID, a.BodyHash, a.Version, a.Lang, string(bullets), string(actions),
		a.Urgency, a.Importance, a.Priority, a.Confidence, boolToInt(a.Truncated), a.Model,
		a.PromptTokens, a.CompletionTokens, a.Notes, now, now,
	)
	if err != nil {
		return classify(fmt.Sprintf("upserting analysis for message %d", messageID), err)
	}

	if err := replaceMessageLabels(ctx, tx, messageID, labels, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing analysis for message %d: %w", messageID, err)
	}
	return nil
}

// RecordAnalysisFailure stores errText as the message's last error. A
// previously stored analysis payload is left untouched.
func (s *SQLiteStore) RecordAnalysisFailure(ctx context.Context, messageID int64, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_analysis (message_id, last_error, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		messageID, errText, time.Now().UTC(),
	)
	if err != nil {
		return classify(fmt.Sprintf("recording analysis failure for message %d", messageID), err)
	}
	return nil
}

// backlogRow is a message row plus its effective priority columns.
type backlogRow struct {
	model.Message
	Priority   int `db:"priority"`
	Urgency    int `db:"urgency"`
	Importance int `db:"importance"`
}

// GetBacklog returns messages whose effective priority is at least
// f.MinPriority, highest priority first, then newest first. Messages
// without a successful analysis have effective priority 0.
func (s *SQLiteStore) GetBacklog(ctx context.Context, f BacklogFilter) ([]model.BacklogItem, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query := `
		SELECT ` + prefixed("m", messageColumns) + `,
			COALESCE(a.priority, 0) AS priority,
			COALESCE(a.urgency, 0) AS urgency,
			COALESCE(a.importance, 0) AS importance
		FROM messages m
		LEFT JOIN message_analysis a
			ON a.message_id = m.id AND a.analyzed_at IS NOT NULL
		WHERE COALESCE(a.priority, 0) >= ?`
	args := []any{f.MinPriority}
	if f.OnlyUnread {
		query += " AND m.is_unread = 1"
	}
	query += " ORDER BY priority DESC, m.date DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	var rows []backlogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying backlog: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	labels, err := s.labelNamesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]model.BacklogItem, len(rows))
	for i, r := range rows {
		items[i] = model.BacklogItem{
			Message:    r.Message,
			Priority:   r.Priority,
			Urgency:    r.Urgency,
			Importance: r.Importance,
			Labels:     labels[r.ID],
		}
	}
	return items, nil
}

// ListMessagesNeedingAnalysis returns ids of messages with no successful
// analysis, an outdated analysis version, or a body whose hash no longer
// matches the analyzed one. Newest first; limit <= 0 means no limit.
func (s *SQLiteStore) ListMessagesNeedingAnalysis(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = -1
	}

	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT m.id
		FROM messages m
		LEFT JOIN message_analysis a ON a.message_id = m.id
		LEFT JOIN message_bodies b ON b.message_id = m.id
		WHERE a.analyzed_at IS NULL
			OR a.version < ?
			OR a.body_hash <> COALESCE(b.content_hash, a.body_hash)
		ORDER BY m.date DESC, m.id DESC
		LIMIT ?`,
		model.AnalysisVersion, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages needing analysis: %w", err)
	}
	return ids, nil
}

// labelNamesFor returns label names keyed by message id.
func (s *SQLiteStore) labelNamesFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	query, args, err := sqlx.In(`
		SELECT ml.message_id, l.name
		FROM message_labels ml
		JOIN labels l ON l.id = ml.label_id
		WHERE ml.message_id IN (?)
		ORDER BY l.name`, ids)
	if err != nil {
		return nil, fmt.Errorf("building label query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning label row: %w", err)
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
