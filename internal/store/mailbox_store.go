package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/inbox-companion/internal/model"
)

// GetMailbox returns the sync watermark for a mailbox. A mailbox that
// has never been synced yields a zero watermark.
func (s *SQLiteStore) GetMailbox(ctx context.Context, name string) (*model.MailboxState, error) {
	var st model.MailboxState
	err := s.db.GetContext(ctx, &st,
		"SELECT name, uid_validity, last_uid, last_seen_at FROM mailboxes WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.MailboxState{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mailbox %s: %w", name, err)
	}
	return &st, nil
}

// SaveMailbox stores the sync watermark for a mailbox.
func (s *SQLiteStore) SaveMailbox(ctx context.Context, st model.MailboxState) error {
	seen := time.Now().UTC()
	if st.LastSeenAt != nil {
		seen = st.LastSeenAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (name, uid_validity, last_uid, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			last_uid = excluded.last_uid,
			last_seen_at = excluded.last_seen_at`,
		st.Name, st.UIDValidity, st.LastUID, seen,
	)
	if err != nil {
		return classify(fmt.Sprintf("saving mailbox %s", st.Name), err)
	}
	return nil
}
