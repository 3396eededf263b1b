package store

import (
	"context"

	"github.com/nhle/inbox-companion/internal/model"
)

// BacklogFilter controls the priority backlog query.
type BacklogFilter struct {
	Limit       int
	MinPriority int
	OnlyUnread  bool
}

// Store defines the persistence interface for messages, bodies, analyses,
// labels, memory items and mailbox watermarks. Every write keeps the
// full-text index consistent before it returns.
type Store interface {
	// === Messages ===

	// InsertMessage inserts msg and its body in one transaction. It
	// returns false without error when (mailbox, uid) already exists.
	InsertMessage(ctx context.Context, msg *model.Message, body *model.MessageBody) (bool, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	GetMessageBody(ctx context.Context, messageID int64) (*model.MessageBody, error)
	PutMessageBody(ctx context.Context, body model.MessageBody) error
	GetFlagsByUID(ctx context.Context, mailbox string, uids []uint32) (map[uint32]model.StoredFlags, error)
	ApplyFlagChanges(ctx context.Context, changes []model.FlagChange) (int, error)
	RecentUIDs(ctx context.Context, mailbox string, limit int) ([]uint32, error)
	CountMessages(ctx context.Context) (messages int, bodies int, err error)

	// === Search ===

	Search(ctx context.Context, query string, limit int) ([]model.Message, error)

	// === Analysis ===

	GetAnalysis(ctx context.Context, messageID int64) (*model.MessageAnalysis, error)
	UpsertAnalysis(ctx context.Context, messageID int64, a model.MessageAnalysis, labels []string) error
	RecordAnalysisFailure(ctx context.Context, messageID int64, errText string) error
	GetBacklog(ctx context.Context, f BacklogFilter) ([]model.BacklogItem, error)
	ListMessagesNeedingAnalysis(ctx context.Context, limit int) ([]int64, error)

	// === Labels ===

	GetLabels(ctx context.Context) ([]model.Label, error)
	GetMessageLabels(ctx context.Context, messageID int64) ([]model.Label, error)

	// === Memory ===

	UpsertMemoryItem(ctx context.Context, item model.MemoryItem) error
	ListMemoryItems(ctx context.Context, includeExpired bool) ([]model.MemoryItem, error)
	DeleteMemoryItem(ctx context.Context, kind, key string) error

	// === Mailboxes ===

	GetMailbox(ctx context.Context, name string) (*model.MailboxState, error)
	SaveMailbox(ctx context.Context, st model.MailboxState) error

	Close() error
}
