package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/inbox-companion/internal/extract"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/store"
)

// NewTestStore creates a SQLiteStore in a temporary directory with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// MessageOption customizes a fixture message.
type MessageOption func(*model.Message, *model.MessageBody)

// WithSubject sets the subject.
func WithSubject(subject string) MessageOption {
	return func(m *model.Message, _ *model.MessageBody) { m.Subject = subject }
}

// WithSender sets the sender name and address.
func WithSender(name, email string) MessageOption {
	return func(m *model.Message, _ *model.MessageBody) {
		m.FromName = name
		m.FromEmail = email
	}
}

// WithBody sets the body text, preview, snippet and hash.
func WithBody(text string) MessageOption {
	return func(m *model.Message, b *model.MessageBody) {
		m.Snippet = text
		m.BodyPreview = text
		b.Text = text
		b.ContentHash = extract.Hash(text)
	}
}

// WithDate sets the message date.
func WithDate(d time.Time) MessageOption {
	return func(m *model.Message, _ *model.MessageBody) { m.Date = d }
}

// WithFlags sets the flag state.
func WithFlags(f model.Flags) MessageOption {
	return func(m *model.Message, _ *model.MessageBody) {
		m.IsUnread = f.Unread
		m.IsAnswered = f.Answered
		m.IsStarred = f.Starred
	}
}

// InsertMessage stores a fixture message in INBOX with the given UID and
// returns it with its ID populated.
func InsertMessage(t *testing.T, s store.Store, uid uint32, opts ...MessageOption) model.Message {
	t.Helper()

	msg := model.Message{
		Mailbox:   "INBOX",
		UID:       uid,
		MessageID: fmt.Sprintf("msg-%d@example.org", uid),
		Subject:   fmt.Sprintf("Message %d", uid),
		FromName:  "Sender",
		FromEmail: "sender@example.org",
		Date:      time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		IsUnread:  true,
	}
	body := model.MessageBody{Text: "body", ContentHash: extract.Hash("body")}
	for _, opt := range opts {
		opt(&msg, &body)
	}

	inserted, err := s.InsertMessage(context.Background(), &msg, &body)
	if err != nil {
		t.Fatalf("inserting message uid %d: %v", uid, err)
	}
	if !inserted {
		t.Fatalf("message uid %d already existed", uid)
	}
	return msg
}
