package inbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/store"
	"github.com/nhle/inbox-companion/internal/sync"
	"github.com/nhle/inbox-companion/tests/testutil"
)

type fakeSyncer struct {
	pollMailbox string
	pollLimit   int
	backfill    sync.BackfillOptions
	err         error
}

func (f *fakeSyncer) PollRecent(_ context.Context, mailbox string, limit int) (*sync.Result, error) {
	f.pollMailbox = mailbox
	f.pollLimit = limit
	return &sync.Result{Fetched: 2, Inserted: 1, Updated: 1, Aborted: f.err != nil}, f.err
}

func (f *fakeSyncer) Backfill(_ context.Context, opts sync.BackfillOptions) (*sync.Result, error) {
	f.backfill = opts
	return &sync.Result{Fetched: 5, Inserted: 5}, f.err
}

type fakeModels struct {
	models []string
	err    error
}

func (f fakeModels) ListModels(context.Context) ([]string, error) { return f.models, f.err }

// recordingHandler remembers which ids it was asked to process.
type recordingHandler struct {
	seen chan int64
}

func (h *recordingHandler) Handle(_ context.Context, id int64, _ jobs.Options) (jobs.Outcome, error) {
	h.seen <- id
	return jobs.OutcomeOK, nil
}

func newService(t *testing.T, syncer inbox.Syncer) (*inbox.Service, store.Store, *recordingHandler) {
	t.Helper()

	s := testutil.NewTestStore(t)
	h := &recordingHandler{seen: make(chan int64, 64)}
	m := jobs.NewManager(2, nil)
	m.Register(jobs.KindSummarize, h)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	if syncer == nil {
		syncer = &fakeSyncer{}
	}
	return inbox.NewService(s, syncer, m, fakeModels{models: []string{"llama3.1:8b"}}, nil), s, h
}

func analysisFor(id int64, urgency, importance int) model.MessageAnalysis {
	return model.MessageAnalysis{
		MessageID:  id,
		BodyHash:   "hash",
		Version:    model.AnalysisVersion,
		Bullets:    []string{"one"},
		Urgency:    urgency,
		Importance: importance,
		Priority:   urgency*10 + importance*10,
		Confidence: 0.8,
	}
}

func TestSyncDelegates(t *testing.T) {
	syncer := &fakeSyncer{}
	svc, _, _ := newService(t, syncer)
	ctx := context.Background()

	res, err := svc.SyncPollRecent(ctx, "INBOX", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, "INBOX", syncer.pollMailbox)
	assert.Equal(t, 50, syncer.pollLimit)

	opts := sync.BackfillOptions{Mailbox: "Archive", SinceDays: 30, OnlyUnseen: true, Limit: 10}
	res, err = svc.SyncBackfill(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, opts, syncer.backfill)
}

func TestSyncPollReturnsPartialResultOnAbort(t *testing.T) {
	syncer := &fakeSyncer{err: apperr.Connectivity("imap.fetch", errors.New("connection reset"))}
	svc, _, _ := newService(t, syncer)

	res, err := svc.SyncPollRecent(context.Background(), "INBOX", 10)
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	require.NotNil(t, res)
	assert.True(t, res.Aborted)
	assert.Equal(t, 2, res.Fetched)
}

func TestGetAnalysisUnknownMessage(t *testing.T) {
	svc, _, _ := newService(t, nil)

	view, found, err := svc.GetAnalysis(context.Background(), 4242)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, view)
}

func TestGetAnalysisStates(t *testing.T) {
	svc, s, _ := newService(t, nil)
	ctx := context.Background()

	fresh := testutil.InsertMessage(t, s, 1)
	view, found, err := svc.GetAnalysis(ctx, fresh.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, view.Analysis)
	assert.Empty(t, view.Labels)
	assert.Empty(t, view.LastError)

	failed := testutil.InsertMessage(t, s, 2)
	require.NoError(t, s.RecordAnalysisFailure(ctx, failed.ID, "llm.chat: timeout"))
	view, found, err = svc.GetAnalysis(ctx, failed.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, view.Analysis)
	assert.Equal(t, "llm.chat: timeout", view.LastError)

	done := testutil.InsertMessage(t, s, 3)
	require.NoError(t, s.UpsertAnalysis(ctx, done.ID, analysisFor(done.ID, 3, 4), []string{"work", "finance"}))
	view, found, err = svc.GetAnalysis(ctx, done.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, view.Analysis)
	assert.Equal(t, 3, view.Analysis.Urgency)
	assert.ElementsMatch(t, []string{"work", "finance"}, view.Labels)
	assert.Empty(t, view.LastError)
}

func TestGetBacklogValidatesPriority(t *testing.T) {
	svc, _, _ := newService(t, nil)

	_, err := svc.GetBacklog(context.Background(), 10, 101, false)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetBacklogOrder(t *testing.T) {
	svc, s, _ := newService(t, nil)
	ctx := context.Background()

	low := testutil.InsertMessage(t, s, 1)
	high := testutil.InsertMessage(t, s, 2)
	testutil.InsertMessage(t, s, 3)
	require.NoError(t, s.UpsertAnalysis(ctx, low.ID, analysisFor(low.ID, 1, 1), nil))
	require.NoError(t, s.UpsertAnalysis(ctx, high.ID, analysisFor(high.ID, 5, 5), nil))

	items, err := svc.GetBacklog(ctx, 10, 1, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, high.ID, items[0].ID)
	assert.Equal(t, low.ID, items[1].ID)
}

func TestSearch(t *testing.T) {
	svc, s, _ := newService(t, nil)
	ctx := context.Background()

	testutil.InsertMessage(t, s, 1, testutil.WithSubject("Invoice for September"))
	testutil.InsertMessage(t, s, 2, testutil.WithSubject("Lunch plans"))

	got, err := svc.Search(ctx, "invoice", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Invoice for September", got[0].Subject)

	got, err = svc.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubmitSummarizeJobAllMissing(t *testing.T) {
	svc, s, h := newService(t, nil)
	ctx := context.Background()

	a := testutil.InsertMessage(t, s, 1)
	b := testutil.InsertMessage(t, s, 2)
	analyzed := testutil.InsertMessage(t, s, 3)
	body, err := s.GetMessageBody(ctx, analyzed.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpsertAnalysis(ctx, analyzed.ID, model.MessageAnalysis{
		MessageID: analyzed.ID,
		BodyHash:  body.ContentHash,
		Version:   model.AnalysisVersion,
	}, nil))

	id, err := svc.SubmitSummarizeJob(ctx, inbox.SummarizeRequest{AllMissing: true})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := svc.WaitJob(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.OK)

	close(h.seen)
	var seen []int64
	for id := range h.seen {
		seen = append(seen, id)
	}
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, seen)

	got, ok := svc.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, 100, got.Pct)
	assert.Len(t, svc.ListJobs(jobs.KindSummarize), 1)
	assert.Empty(t, svc.ListJobs("other"))
}

func TestSubmitSummarizeJobNothingMissing(t *testing.T) {
	svc, s, _ := newService(t, nil)
	ctx := context.Background()

	id, err := svc.SubmitSummarizeJob(ctx, inbox.SummarizeRequest{AllMissing: true})
	require.NoError(t, err)
	assert.Empty(t, id)

	m := testutil.InsertMessage(t, s, 1)
	body, err := s.GetMessageBody(ctx, m.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpsertAnalysis(ctx, m.ID, model.MessageAnalysis{
		MessageID: m.ID,
		BodyHash:  body.ContentHash,
		Version:   model.AnalysisVersion,
	}, nil))

	for range 3 {
		id, err = svc.SubmitSummarizeJob(ctx, inbox.SummarizeRequest{AllMissing: true, Limit: 50})
		require.NoError(t, err)
		assert.Empty(t, id)
	}
	assert.Empty(t, svc.ListJobs(jobs.KindSummarize), "no job is created for an empty selection")
}

func TestSubmitSummarizeJobRequiresIDs(t *testing.T) {
	svc, _, _ := newService(t, nil)

	_, err := svc.SubmitSummarizeJob(context.Background(), inbox.SummarizeRequest{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMemoryLifecycle(t *testing.T) {
	svc, _, _ := newService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetMemory(ctx, "person", "alice", "my manager", 0))
	require.NoError(t, svc.SetMemory(ctx, "project", "apollo", "launch in Q4", time.Hour))

	items, err := svc.ListMemory(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, svc.DeleteMemory(ctx, "person", "alice"))
	items, err = svc.ListMemory(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "apollo", items[0].Key)
	require.NotNil(t, items[0].ExpiresAt)
}

func TestPingLLMAndStats(t *testing.T) {
	svc, s, _ := newService(t, nil)
	ctx := context.Background()

	models, err := svc.PingLLM(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b"}, models)

	testutil.InsertMessage(t, s, 1)
	msgs, bodies, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, msgs)
	assert.Equal(t, 1, bodies)
}
