package model

import "time"

// Flags is the subset of IMAP flag state tracked per message.
type Flags struct {
	Unread   bool `json:"unread"`
	Answered bool `json:"answered"`
	Starred  bool `json:"starred"`
}

// Message is one ingested mail, unique by (Mailbox, UID).
type Message struct {
	ID          int64     `db:"id" json:"id"`
	Mailbox     string    `db:"mailbox" json:"mailbox"`
	UID         uint32    `db:"uid" json:"uid"`
	MessageID   string    `db:"message_id" json:"message_id"`
	Subject     string    `db:"subject" json:"subject"`
	FromName    string    `db:"from_name" json:"from_name"`
	FromEmail   string    `db:"from_email" json:"from_email"`
	Date        time.Time `db:"date" json:"date"`
	IsUnread    bool      `db:"is_unread" json:"is_unread"`
	IsAnswered  bool      `db:"is_answered" json:"is_answered"`
	IsStarred   bool      `db:"is_starred" json:"is_starred"`
	InReplyTo   string    `db:"in_reply_to" json:"in_reply_to,omitempty"`
	References  string    `db:"refs" json:"references,omitempty"`
	Snippet     string    `db:"snippet" json:"snippet"`
	BodyPreview string    `db:"body_preview" json:"body_preview"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Flags returns the message's tracked flag state.
func (m Message) Flags() Flags {
	return Flags{Unread: m.IsUnread, Answered: m.IsAnswered, Starred: m.IsStarred}
}

// Sender returns the display name when present, otherwise the address.
func (m Message) Sender() string {
	if m.FromName != "" {
		return m.FromName
	}
	return m.FromEmail
}

// MessageBody is the normalized full text of a message. A body is never
// rewritten for the same ContentHash.
type MessageBody struct {
	MessageID   int64     `db:"message_id" json:"message_id"`
	Text        string    `db:"body_text" json:"body_text"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StoredFlags is the locally known flag state of one message.
type StoredFlags struct {
	MessageID int64
	Flags     Flags
}

// FlagChange is one row of a flag reconciliation diff.
type FlagChange struct {
	MessageID int64
	UID       uint32
	Old       Flags
	New       Flags
}

// MailboxState is the sync watermark for one remote mailbox.
type MailboxState struct {
	Name        string     `db:"name"`
	UIDValidity uint32     `db:"uid_validity"`
	LastUID     uint32     `db:"last_uid"`
	LastSeenAt  *time.Time `db:"last_seen_at"`
}

// BacklogItem is a message paired with its effective priority.
type BacklogItem struct {
	Message
	Priority   int      `json:"priority"`
	Urgency    int      `json:"urgency"`
	Importance int      `json:"importance"`
	Labels     []string `json:"labels"`
}
