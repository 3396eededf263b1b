// Package inbox is the application facade the CLI (or any outer layer)
// talks to. Every failure it returns carries an apperr kind; a missing
// message is reported as found == false rather than as an error.
package inbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/store"
	"github.com/nhle/inbox-companion/internal/sync"
)

// Syncer runs mailbox synchronization.
type Syncer interface {
	PollRecent(ctx context.Context, mailbox string, limit int) (*sync.Result, error)
	Backfill(ctx context.Context, opts sync.BackfillOptions) (*sync.Result, error)
}

// ModelLister lists the models available on the LLM endpoint.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// AnalysisView is a message with its analysis and labels. Analysis is
// nil when the message has never been analyzed.
type AnalysisView struct {
	Message   model.Message          `json:"message"`
	Analysis  *model.MessageAnalysis `json:"analysis,omitempty"`
	Labels    []string               `json:"labels"`
	LastError string                 `json:"last_error,omitempty"`
}

// SummarizeRequest selects the messages of a summarize job. With
// AllMissing set, IDs is ignored and every message lacking a current
// analysis is selected, newest first, up to Limit (<= 0 means all).
type SummarizeRequest struct {
	IDs        []int64
	AllMissing bool
	Limit      int
	Options    jobs.Options
}

// Service wires the store, sync engine, job manager and LLM client.
type Service struct {
	store  store.Store
	syncer Syncer
	jobs   *jobs.Manager
	models ModelLister
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(s store.Store, syncer Syncer, m *jobs.Manager, models ModelLister, logger *zap.Logger) *Service {
	return &Service{
		store:  s,
		syncer: syncer,
		jobs:   m,
		models: models,
		logger: logging.OrNop(logger).Named("inbox"),
	}
}

// SyncPollRecent ingests new mail and refreshes recent flags. The result
// is returned even when the run was aborted.
func (s *Service) SyncPollRecent(ctx context.Context, mailbox string, limit int) (*sync.Result, error) {
	res, err := s.syncer.PollRecent(ctx, mailbox, limit)
	if err != nil {
		s.logger.Warn("poll failed", zap.String("mailbox", mailbox), zap.Error(err))
	}
	return res, err
}

// SyncBackfill ingests historical mail.
func (s *Service) SyncBackfill(ctx context.Context, opts sync.BackfillOptions) (*sync.Result, error) {
	res, err := s.syncer.Backfill(ctx, opts)
	if err != nil {
		s.logger.Warn("backfill failed", zap.String("mailbox", opts.Mailbox), zap.Error(err))
	}
	return res, err
}

// Search runs a full-text query. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Message, error) {
	return s.store.Search(ctx, query, limit)
}

// GetBacklog returns messages at or above minPriority, highest first.
func (s *Service) GetBacklog(ctx context.Context, limit, minPriority int, onlyUnread bool) ([]model.BacklogItem, error) {
	if minPriority < 0 || minPriority > 100 {
		return nil, apperr.Validationf("inbox.backlog", "min priority must be within 0..100, got %d", minPriority)
	}
	return s.store.GetBacklog(ctx, store.BacklogFilter{
		Limit:       limit,
		MinPriority: minPriority,
		OnlyUnread:  onlyUnread,
	})
}

// GetAnalysis returns the analysis view of a message. found is false when
// the message does not exist.
func (s *Service) GetAnalysis(ctx context.Context, messageID int64) (view *AnalysisView, found bool, err error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	view = &AnalysisView{Message: *msg, Labels: []string{}}

	a, err := s.store.GetAnalysis(ctx, messageID)
	switch {
	case err == nil:
		view.LastError = a.LastError
		if a.HasResult() {
			view.Analysis = a
		}
	case !apperr.IsNotFound(err):
		return nil, false, err
	}

	labels, err := s.store.GetMessageLabels(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	for _, l := range labels {
		view.Labels = append(view.Labels, l.Name)
	}
	return view, true, nil
}

// SubmitSummarizeJob starts a background analysis job and returns its id.
// With AllMissing and nothing left to analyze, no job is created and the
// returned id is empty.
func (s *Service) SubmitSummarizeJob(ctx context.Context, req SummarizeRequest) (string, error) {
	ids := req.IDs
	if req.AllMissing {
		var err error
		ids, err = s.store.ListMessagesNeedingAnalysis(ctx, req.Limit)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			s.logger.Debug("no messages need analysis")
			return "", nil
		}
	} else if len(ids) == 0 {
		return "", apperr.Validationf("inbox.summarize", "no message ids given")
	}
	return s.jobs.Submit(jobs.KindSummarize, ids, req.Options)
}

// GetJob returns a job snapshot.
func (s *Service) GetJob(id string) (jobs.Snapshot, bool) {
	return s.jobs.Get(id)
}

// ListJobs returns job snapshots, newest first.
func (s *Service) ListJobs(kind string) []jobs.Snapshot {
	return s.jobs.List(kind)
}

// WaitJob blocks until a job completes.
func (s *Service) WaitJob(ctx context.Context, id string) (jobs.Snapshot, error) {
	return s.jobs.Wait(ctx, id)
}

// PingLLM lists the models available on the LLM endpoint.
func (s *Service) PingLLM(ctx context.Context) ([]string, error) {
	return s.models.ListModels(ctx)
}

// Stats returns the number of stored messages and bodies.
func (s *Service) Stats(ctx context.Context) (messages, bodies int, err error) {
	return s.store.CountMessages(ctx)
}

// SetMemory stores a memory fact. A positive ttl sets an expiry.
func (s *Service) SetMemory(ctx context.Context, kind, key, value string, ttl time.Duration) error {
	item := model.MemoryItem{Kind: kind, Key: key, Value: value}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		item.ExpiresAt = &exp
	}
	return s.store.UpsertMemoryItem(ctx, item)
}

// ListMemory returns memory facts.
func (s *Service) ListMemory(ctx context.Context, includeExpired bool) ([]model.MemoryItem, error) {
	return s.store.ListMemoryItems(ctx, includeExpired)
}

// DeleteMemory removes a memory fact.
func (s *Service) DeleteMemory(ctx context.Context, kind, key string) error {
	return s.store.DeleteMemoryItem(ctx, kind, key)
}

// Labels returns every known label.
func (s *Service) Labels(ctx context.Context) ([]model.Label, error) {
	return s.store.GetLabels(ctx)
}
