package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

const messageColumns = `id, mailbox, uid, message_id, subject, from_name, from_email, date,
	is_unread, is_answered, is_starred, in_reply_to, refs, snippet, body_preview,
	created_at, updated_at`

// flagQueryChunk bounds the UIDs bound into one IN list, well under
// SQLite's host parameter limit.
const flagQueryChunk = 500

// InsertMessage inserts msg and, when body is non-nil, its body row in a
// single transaction. An existing (mailbox, uid) is left untouched and
// reported as not inserted. On success msg.ID and body.MessageID are set.
func (s *SQLiteStore) InsertMessage(
	ctx context.Context,
	msg *model.Message,
	body *model.MessageBody,
) (bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (
			mailbox, uid, message_id, subject, from_name, from_email, date,
			is_unread, is_answered, is_starred, in_reply_to, refs,
			snippet, body_preview, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mailbox, uid) DO NOTHING`,
		msg.Mailbox, msg.UID, msg.MessageID, msg.Subject, msg.FromName, msg.FromEmail,
		msg.Date.UTC().Truncate(time.Second),
		boolToInt(msg.IsUnread), boolToInt(msg.IsAnswered), boolToInt(msg.IsStarred),
		msg.InReplyTo, msg.References, msg.Snippet, msg.BodyPreview, now, now,
	)
	if err != nil {
		return false, classify(fmt.Sprintf("inserting message %s/%d", msg.Mailbox, msg.UID), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading message id: %w", err)
	}

	if body != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_bodies (message_id, body_text, content_hash, created_at)
			VALUES (?, ?, ?, ?)`,
			id, body.Text, body.ContentHash, now,
		)
		if err != nil {
			return false, classify(fmt.Sprintf("inserting body for message %d", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing message %s/%d: %w", msg.Mailbox, msg.UID, err)
	}

	msg.ID = id
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if body != nil {
		body.MessageID = id
		body.CreatedAt = now
	}
	return true, nil
}

// GetMessage retrieves a single message by its ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("store.GetMessage", "message %d not found", id)
		}
		return nil, fmt.Errorf("getting message %d: %w", id, err)
	}
	return &m, nil
}

// GetMessageBody retrieves the stored body of a message.
func (s *SQLiteStore) GetMessageBody(ctx context.Context, messageID int64) (*model.MessageBody, error) {
	var b model.MessageBody
	err := s.db.GetContext(ctx, &b,
		"SELECT message_id, body_text, content_hash, created_at FROM message_bodies WHERE message_id = ?",
		messageID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("store.GetMessageBody", "body for message %d not found", messageID)
		}
		return nil, fmt.Errorf("getting body for message %d: %w", messageID, err)
	}
	return &b, nil
}

// PutMessageBody stores a body for an existing message. A body with the
// same hash is left as is; a different hash replaces the stored text.
func (s *SQLiteStore) PutMessageBody(ctx context.Context, body model.MessageBody) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_bodies (message_id, body_text, content_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			body_text = excluded.body_text,
			content_hash = excluded.content_hash,
			created_at = excluded.created_at
		WHERE message_bodies.content_hash <> excluded.content_hash`,
		body.MessageID, body.Text, body.ContentHash, time.Now().UTC(),
	)
	if err != nil {
		return classify(fmt.Sprintf("storing body for message %d", body.MessageID), err)
	}
	return nil
}

// GetFlagsByUID returns the stored flag state for the given UIDs of a
// mailbox. UIDs with no stored message are absent from the result.
func (s *SQLiteStore) GetFlagsByUID(
	ctx context.Context,
	mailbox string,
	uids []uint32,
) (map[uint32]model.StoredFlags, error) {
	out := make(map[uint32]model.StoredFlags, len(uids))
	for chunk := range slices.Chunk(uids, flagQueryChunk) {
		if err := s.flagsByUID(ctx, mailbox, chunk, out); err != nil {
			return nil, apperr.Wrap(apperr.KindIntegrity, "store.flags", err, "reading stored flags for "+mailbox)
		}
	}
	return out, nil
}

func (s *SQLiteStore) flagsByUID(ctx context.Context, mailbox string, uids []uint32, out map[uint32]model.StoredFlags) error {
	query, args, err := sqlx.In(
		"SELECT id, uid, is_unread, is_answered, is_starred FROM messages WHERE mailbox = ? AND uid IN (?)",
		mailbox, uids,
	)
	if err != nil {
		return fmt.Errorf("building flag query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("querying flags for %s: %w", mailbox, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                        int64
			uid                       uint32
			unread, answered, starred bool
		)
		if err := rows.Scan(&id, &uid, &unread, &answered, &starred); err != nil {
			return fmt.Errorf("scanning flag row: %w", err)
		}
		out[uid] = model.StoredFlags{
			MessageID: id,
			Flags:     model.Flags{Unread: unread, Answered: answered, Starred: starred},
		}
	}

	return rows.Err()
}

// ApplyFlagChanges writes the new flag state for each change in one
// transaction and returns the number of rows updated.
func (s *SQLiteStore) ApplyFlagChanges(ctx context.Context, changes []model.FlagChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		UPDATE messages
		SET is_unread = ?, is_answered = ?, is_starred = ?, updated_at = ?
		WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("preparing flag update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	updated := 0
	for _, c := range changes {
		res, err := stmt.ExecContext(ctx,
			boolToInt(c.New.Unread), boolToInt(c.New.Answered), boolToInt(c.New.Starred),
			now, c.MessageID,
		)
		if err != nil {
			return 0, classify(fmt.Sprintf("updating flags for message %d", c.MessageID), err)
		}
		n, _ := res.RowsAffected()
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing flag changes: %w", err)
	}
	return updated, nil
}

// RecentUIDs returns up to limit stored UIDs of a mailbox, highest first.
func (s *SQLiteStore) RecentUIDs(ctx context.Context, mailbox string, limit int) ([]uint32, error) {
	var uids []uint32
	err := s.db.SelectContext(ctx, &uids,
		"SELECT uid FROM messages WHERE mailbox = ? ORDER BY uid DESC LIMIT ?",
		mailbox, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent uids for %s: %w", mailbox, err)
	}
	return uids, nil
}

// CountMessages returns the number of message and body rows.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int, int, error) {
	var counts struct {
		Messages int `db:"messages"`
		Bodies   int `db:"bodies"`
	}
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			(SELECT COUNT(*) FROM messages) AS messages,
			(SELECT COUNT(*) FROM message_bodies) AS bodies`)
	if err != nil {
		return 0, 0, fmt.Errorf("counting messages: %w", err)
	}
	return counts.Messages, counts.Bodies, nil
}
