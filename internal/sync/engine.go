package sync

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/extract"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/metrics"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/source/email"
	"github.com/nhle/inbox-companion/internal/store"
)

// Session is the subset of an IMAP session the engine drives.
type Session interface {
	Select(ctx context.Context, mailbox string) (uint32, error)
	SearchUIDs(ctx context.Context, c email.SearchCriteria) ([]uint32, error)
	FetchFlags(ctx context.Context, uids []uint32) (map[uint32]model.Flags, error)
	FetchMessage(ctx context.Context, uid uint32) (*email.RawMessage, error)
	Close() error
}

// Dialer opens one authenticated session.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Session, error)

func (f DialerFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// IMAPDialer returns a Dialer backed by an IMAP client.
func IMAPDialer(c *email.IMAPClient) Dialer {
	return DialerFunc(func(ctx context.Context) (Session, error) {
		s, err := c.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Result aggregates the outcome of one sync invocation.
type Result struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`

	// Aborted is set when a connection-level failure stopped the run
	// before every candidate was attempted.
	Aborted bool `json:"aborted"`
}

func (r *Result) add(o *Result) {
	r.Fetched += o.Fetched
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Errors += o.Errors
	r.Aborted = r.Aborted || o.Aborted
}

// BackfillOptions selects historical mail to ingest.
type BackfillOptions struct {
	// Mailbox limits the run to one mailbox; empty means all configured.
	Mailbox    string
	SinceDays  int
	OnlyUnseen bool
	// Limit caps the number of new messages fetched per mailbox; <= 0
	// means no cap.
	Limit int
}

// Options configures an Engine.
type Options struct {
	Mailboxes       []string
	PollLimit       int
	BackfillDaysMax int
	FetchChunk      int
}

// Engine brings the store's view of remote mailboxes up to date. Runs
// are serialized so that watermark updates never interleave.
type Engine struct {
	store     store.Store
	dialer    Dialer
	extractor extract.Extractor
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu gosync.Mutex
}

// NewEngine creates a sync engine.
func NewEngine(s store.Store, d Dialer, ext extract.Extractor, opts Options, logger *zap.Logger) *Engine {
	if len(opts.Mailboxes) == 0 {
		opts.Mailboxes = []string{"INBOX"}
	}
	if opts.PollLimit <= 0 {
		opts.PollLimit = 300
	}
	if opts.BackfillDaysMax <= 0 {
		opts.BackfillDaysMax = 200
	}
	if opts.FetchChunk <= 0 {
		opts.FetchChunk = 200
	}
	if ext == nil {
		ext = extract.New()
	}
	return &Engine{
		store:     s,
		dialer:    d,
		extractor: ext,
		opts:      opts,
		logger:    logging.OrNop(logger).Named("sync"),
		now:       time.Now,
	}
}

// Mailboxes returns the configured mailbox names.
func (e *Engine) Mailboxes() []string {
	return slices.Clone(e.opts.Mailboxes)
}

// PollRecent ingests messages that arrived since the mailbox watermark,
// newest first and at most limit of them, then reconciles flags for the
// limit most recent stored messages. The watermark advances only once
// every UID above it is stored, so a burst larger than limit drains over
// successive polls. On a connection-level failure it
// returns the partial counts together with the error.
func (e *Engine) PollRecent(ctx context.Context, mailbox string, limit int) (res *Result, err error) {
	if mailbox == "" {
		mailbox = e.opts.Mailboxes[0]
	}
	if limit <= 0 {
		limit = e.opts.PollLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { metrics.RecordSyncRun("poll", err) }()

	res = &Result{}
	sess, err := e.dialer.Dial(ctx)
	if err != nil {
		res.Aborted = true
		return res, err
	}
	defer sess.Close()

	uidValidity, err := sess.Select(ctx, mailbox)
	if err != nil {
		res.Aborted = true
		return res, asConnectivity("sync.poll", err)
	}

	state, err := e.store.GetMailbox(ctx, mailbox)
	if err != nil {
		return res, err
	}
	if state.UIDValidity != 0 && state.UIDValidity != uidValidity {
		e.logger.Warn("uidvalidity changed, resetting watermark",
			zap.String("mailbox", mailbox),
			zap.Uint32("old", state.UIDValidity),
			zap.Uint32("new", uidValidity),
		)
		state.LastUID = 0
	}

	criteria := email.SearchCriteria{}
	if state.LastUID == 0 {
		criteria.Since = e.now().AddDate(0, 0, -e.opts.BackfillDaysMax)
	}
	uids, err := sess.SearchUIDs(ctx, criteria)
	if err != nil {
		res.Aborted = true
		return res, asConnectivity("sync.poll", err)
	}

	var above []uint32
	for _, uid := range uids {
		if uid > state.LastUID {
			above = append(above, uid)
		}
	}

	// Messages stored by an earlier capped run or a backfill do not count
	// against the limit.
	existing, err := e.store.GetFlagsByUID(ctx, mailbox, above)
	if err != nil {
		return res, err
	}
	var fresh []uint32
	for _, uid := range above {
		if _, ok := existing[uid]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, uid)
	}
	slices.Reverse(fresh)
	capped := len(fresh) > limit
	if capped {
		fresh = fresh[:limit]
	}

	if err := e.ingest(ctx, sess, mailbox, fresh, nil, res); err != nil {
		return res, err
	}

	if err := e.reconcileFlags(ctx, sess, mailbox, limit, res); err != nil {
		return res, err
	}

	// Older UIDs left out by the cap are still pending, so the watermark
	// holds until a run reaches all of them.
	lastUID := state.LastUID
	if !capped && len(above) > 0 {
		lastUID = max(lastUID, slices.Max(above))
	}
	now := e.now().UTC()
	if err := e.store.SaveMailbox(ctx, model.MailboxState{
		Name:        mailbox,
		UIDValidity: uidValidity,
		LastUID:     lastUID,
		LastSeenAt:  &now,
	}); err != nil {
		return res, err
	}

	e.logger.Info("poll complete",
		zap.String("mailbox", mailbox),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// Backfill ingests mail received within the last SinceDays days, oldest
// first, optionally only unseen mail. Messages already stored are left
// untouched. When the limit applies, the newest candidates are kept.
func (e *Engine) Backfill(ctx context.Context, opts BackfillOptions) (res *Result, err error) {
	if opts.SinceDays <= 0 {
		return nil, apperr.Validationf("sync.backfill", "days must be positive, got %d", opts.SinceDays)
	}
	if opts.SinceDays > e.opts.BackfillDaysMax {
		opts.SinceDays = e.opts.BackfillDaysMax
	}

	mailboxes := e.opts.Mailboxes
	if opts.Mailbox != "" {
		mailboxes = []string{opts.Mailbox}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { metrics.RecordSyncRun("backfill", err) }()

	res = &Result{}
	sess, err := e.dialer.Dial(ctx)
	if err != nil {
		res.Aborted = true
		return res, err
	}
	defer sess.Close()

	cutoff := e.now().Add(-time.Duration(opts.SinceDays) * 24 * time.Hour)
	for _, mailbox := range mailboxes {
		mres, err := e.backfillMailbox(ctx, sess, mailbox, cutoff, opts)
		res.add(mres)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) backfillMailbox(
	ctx context.Context,
	sess Session,
	mailbox string,
	cutoff time.Time,
	opts BackfillOptions,
) (*Result, error) {
	res := &Result{}

	if _, err := sess.Select(ctx, mailbox); err != nil {
		res.Aborted = true
		return res, asConnectivity("sync.backfill", err)
	}

	uids, err := sess.SearchUIDs(ctx, email.SearchCriteria{
		Since:  cutoff,
		Unseen: opts.OnlyUnseen,
	})
	if err != nil {
		res.Aborted = true
		return res, asConnectivity("sync.backfill", err)
	}

	existing, err := e.store.GetFlagsByUID(ctx, mailbox, uids)
	if err != nil {
		return res, err
	}
	var missing []uint32
	for _, uid := range uids {
		if _, ok := existing[uid]; ok {
			res.Skipped++
			continue
		}
		missing = append(missing, uid)
	}
	if opts.Limit > 0 && len(missing) > opts.Limit {
		missing = missing[len(missing)-opts.Limit:]
	}

	// The server filters by internal date at day granularity and flags
	// may change between search and fetch, so both are checked again.
	accept := func(raw *email.RawMessage, date time.Time) bool {
		if opts.OnlyUnseen && !raw.Flags.Unread {
			return false
		}
		return !date.Before(cutoff)
	}

	err = e.ingest(ctx, sess, mailbox, missing, accept, res)

	e.logger.Info("backfill complete",
		zap.String("mailbox", mailbox),
		zap.Time("since", cutoff),
		zap.Bool("only_unseen", opts.OnlyUnseen),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
	)
	return res, err
}

// ingest fetches and stores each UID in order. Per-message failures are
// counted; a connectivity failure stops the loop and is returned.
func (e *Engine) ingest(
	ctx context.Context,
	sess Session,
	mailbox string,
	uids []uint32,
	accept func(*email.RawMessage, time.Time) bool,
	res *Result,
) error {
	if len(uids) == 0 {
		return nil
	}

	existing, err := e.store.GetFlagsByUID(ctx, mailbox, uids)
	if err != nil {
		return err
	}

	for _, uid := range uids {
		if _, ok := existing[uid]; ok {
			res.Skipped++
			metrics.RecordSyncMessage(mailbox, "skipped")
			continue
		}

		outcome, err := e.ingestOne(ctx, sess, mailbox, uid, accept, res)
		if err != nil {
			if apperr.IsConnectivity(err) {
				res.Aborted = true
				e.logger.Error("connection lost, aborting run",
					zap.String("mailbox", mailbox),
					zap.Uint32("uid", uid),
					zap.Error(err),
				)
				metrics.RecordSyncMessage(mailbox, "error")
				return err
			}
			res.Errors++
			metrics.RecordSyncMessage(mailbox, "error")
			if apperr.IsIntegrity(err) {
				e.logger.Error("storing message failed",
					zap.String("mailbox", mailbox),
					zap.Uint32("uid", uid),
					zap.Error(err),
				)
			} else {
				e.logger.Warn("message fetch failed",
					zap.String("mailbox", mailbox),
					zap.Uint32("uid", uid),
					zap.Error(err),
				)
			}
			continue
		}
		metrics.RecordSyncMessage(mailbox, outcome)
	}
	return nil
}

func (e *Engine) ingestOne(
	ctx context.Context,
	sess Session,
	mailbox string,
	uid uint32,
	accept func(*email.RawMessage, time.Time) bool,
	res *Result,
) (string, error) {
	raw, err := sess.FetchMessage(ctx, uid)
	if err != nil {
		return "", err
	}
	res.Fetched++

	ext, err := e.extractor.Extract(raw.Raw)
	if err != nil {
		return "", fmt.Errorf("extracting uid %d: %w", uid, err)
	}

	date := ext.Headers.Date
	if date.IsZero() {
		date = raw.InternalDate
	}
	if accept != nil && !accept(raw, date) {
		res.Skipped++
		return "skipped", nil
	}

	msg := &model.Message{
		Mailbox:     mailbox,
		UID:         raw.UID,
		MessageID:   ext.Headers.MessageID,
		Subject:     ext.Headers.Subject,
		FromName:    ext.Headers.FromName,
		FromEmail:   ext.Headers.FromEmail,
		Date:        date.UTC(),
		IsUnread:    raw.Flags.Unread,
		IsAnswered:  raw.Flags.Answered,
		IsStarred:   raw.Flags.Starred,
		InReplyTo:   ext.Headers.InReplyTo,
		References:  ext.Headers.References,
		Snippet:     ext.Snippet,
		BodyPreview: ext.Preview,
	}
	if msg.UID == 0 {
		msg.UID = uid
	}
	body := &model.MessageBody{Text: ext.Text, ContentHash: ext.Hash}

	inserted, err := e.store.InsertMessage(ctx, msg, body)
	if err != nil {
		return "", err
	}
	if !inserted {
		res.Skipped++
		return "skipped", nil
	}
	res.Inserted++
	return "inserted", nil
}

// reconcileFlags compares stored and remote flags for the most recent
// stored UIDs and writes only the rows that changed.
func (e *Engine) reconcileFlags(ctx context.Context, sess Session, mailbox string, limit int, res *Result) error {
	uids, err := e.store.RecentUIDs(ctx, mailbox, limit)
	if err != nil {
		return err
	}

	for chunk := range slices.Chunk(uids, e.opts.FetchChunk) {
		remote, err := sess.FetchFlags(ctx, chunk)
		if err != nil {
			if apperr.IsConnectivity(err) {
				res.Aborted = true
				return err
			}
			res.Errors++
			e.logger.Warn("flag fetch failed", zap.String("mailbox", mailbox), zap.Error(err))
			continue
		}

		local, err := e.store.GetFlagsByUID(ctx, mailbox, chunk)
		if err != nil {
			return err
		}

		changes := diffFlags(local, remote)
		if len(changes) == 0 {
			continue
		}
		n, err := e.store.ApplyFlagChanges(ctx, changes)
		if err != nil {
			return err
		}
		res.Updated += n
		for range n {
			metrics.RecordSyncMessage(mailbox, "updated")
		}
	}
	return nil
}

// diffFlags returns one change per UID whose remote flags differ from
// the stored ones, ordered by UID. UIDs missing on either side are
// ignored: a message that vanished remotely keeps its last known state.
func diffFlags(local map[uint32]model.StoredFlags, remote map[uint32]model.Flags) []model.FlagChange {
	var changes []model.FlagChange
	for uid, stored := range local {
		fresh, ok := remote[uid]
		if !ok || fresh == stored.Flags {
			continue
		}
		changes = append(changes, model.FlagChange{
			MessageID: stored.MessageID,
			UID:       uid,
			Old:       stored.Flags,
			New:       fresh,
		})
	}
	slices.SortFunc(changes, func(a, b model.FlagChange) int {
		return int(int64(a.UID) - int64(b.UID))
	})
	return changes
}

// asConnectivity promotes a mailbox-level failure to a connectivity
// error, since nothing in the run can proceed without the mailbox.
func asConnectivity(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Connectivity(op, err)
}
