// Package jobs runs batch operations over message ids in the background
// and tracks their progress in memory.
package jobs

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/metrics"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Outcome is the result of handling one item.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Options are passed unchanged to the handler of every item.
type Options struct {
	Force bool   `json:"force"`
	Model string `json:"model,omitempty"`
}

// Handler processes one item of a job. A returned error marks the item
// failed; it never stops the job.
type Handler interface {
	Handle(ctx context.Context, id int64, opts Options) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, id int64, opts Options) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, id int64, opts Options) (Outcome, error) {
	return f(ctx, id, opts)
}

// Snapshot is a point-in-time copy of a job's progress. At all times
// OK + Skipped + Errors + Remaining == Total.
type Snapshot struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	OK         int        `json:"ok"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	Remaining  int        `json:"remaining"`
	Pct        int        `json:"pct"`
	Note       string     `json:"note,omitempty"`
}

// RetainCompleted is how many completed jobs a Manager keeps for Get and
// List. Older completed jobs are dropped as new ones finish.
const RetainCompleted = 100

type job struct {
	snap Snapshot
	seq  uint64
	done chan struct{}
}

// Manager owns the job registry. Job state lives only in process memory
// and is lost on restart.
type Manager struct {
	handlers    map[string]Handler
	concurrency int
	logger      *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job
	seq  uint64
	wg   sync.WaitGroup
}

// NewManager creates a Manager that runs at most concurrency items of a
// job at once.
func NewManager(concurrency int, logger *zap.Logger) *Manager {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Manager{
		handlers:    make(map[string]Handler),
		concurrency: concurrency,
		logger:      logging.OrNop(logger).Named("jobs"),
		jobs:        make(map[string]*job),
	}
}

// Register binds a handler to a job kind.
func (m *Manager) Register(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Submit creates a job over ids and starts it in the background,
// returning its id immediately. Duplicate ids are processed once. Jobs
// run to completion regardless of the caller's lifetime.
func (m *Manager) Submit(kind string, ids []int64, opts Options) (string, error) {
	m.mu.Lock()
	h, ok := m.handlers[kind]
	if !ok {
		m.mu.Unlock()
		return "", apperr.Validationf("jobs.submit", "unknown job kind %q", kind)
	}

	unique := dedupe(ids)
	m.seq++
	j := &job{
		seq:  m.seq,
		done: make(chan struct{}),
		snap: Snapshot{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
			Total:     len(unique),
			Remaining: len(unique),
		},
	}
	if len(unique) < len(ids) {
		j.snap.Note = fmt.Sprintf("%d duplicate ids ignored", len(ids)-len(unique))
	}
	m.jobs[j.snap.ID] = j
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.JobsActive.Inc()
	m.logger.Info("job submitted",
		zap.String("job_id", j.snap.ID),
		zap.String("kind", kind),
		zap.Int("total", len(unique)),
		zap.Bool("force", opts.Force),
	)

	go m.run(j, h, unique, opts)
	return j.snap.ID, nil
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return j.snap, true
}

// List returns all jobs, newest first. A non-empty kind filters by kind.
func (m *Manager) List(kind string) []Snapshot {
	m.mu.Lock()
	all := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if kind == "" || j.snap.Kind == kind {
			all = append(all, j)
		}
	}
	slices.SortFunc(all, func(a, b *job) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
	out := make([]Snapshot, len(all))
	for i, j := range all {
		out[i] = j.snap
	}
	m.mu.Unlock()
	return out
}

// Wait blocks until the job completes or ctx is done and returns its
// latest snapshot.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, apperr.NotFoundf("jobs.wait", "job %s not found", id)
	}

	var err error
	select {
	case <-j.done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	// Read through j rather than the registry, which may have pruned it.
	m.mu.Lock()
	snap := j.snap
	m.mu.Unlock()
	return snap, err
}

// Shutdown waits for all running jobs to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(j *job, h Handler, ids []int64, opts Options) {
	defer m.wg.Done()
	defer close(j.done)
	defer metrics.JobsActive.Dec()

	m.update(j, func(s *Snapshot) {
		now := time.Now().UTC()
		s.Status = StatusRunning
		s.StartedAt = &now
	})

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			outcome, err := m.handle(h, id, opts)
			if err != nil {
				m.logger.Warn("job item failed",
					zap.String("job_id", j.snap.ID),
					zap.Int64("message_id", id),
					zap.Error(err),
				)
				outcome = OutcomeError
			}
			m.record(j, outcome)
			return nil
		})
	}
	_ = g.Wait()

	m.update(j, func(s *Snapshot) {
		now := time.Now().UTC()
		s.Status = StatusCompleted
		s.FinishedAt = &now
		s.Pct = pct(s)
	})

	m.mu.Lock()
	snap := j.snap
	m.pruneLocked()
	m.mu.Unlock()

	m.logger.Info("job completed",
		zap.String("job_id", snap.ID),
		zap.String("kind", snap.Kind),
		zap.Int("ok", snap.OK),
		zap.Int("skipped", snap.Skipped),
		zap.Int("errors", snap.Errors),
	)
}

// pruneLocked drops the oldest completed jobs beyond RetainCompleted.
// Queued and running jobs are never dropped.
func (m *Manager) pruneLocked() {
	var completed []*job
	for _, j := range m.jobs {
		if j.snap.Status == StatusCompleted {
			completed = append(completed, j)
		}
	}
	if len(completed) <= RetainCompleted {
		return
	}
	slices.SortFunc(completed, func(a, b *job) int { return cmp.Compare(b.seq, a.seq) })
	for _, j := range completed[RetainCompleted:] {
		delete(m.jobs, j.snap.ID)
	}
}

// handle runs one item, converting a handler panic into an item error.
func (m *Manager) handle(h Handler, id int64, opts Options) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(context.Background(), id, opts)
}

func (m *Manager) record(j *job, outcome Outcome) {
	m.update(j, func(s *Snapshot) {
		switch outcome {
		case OutcomeOK:
			s.OK++
		case OutcomeSkipped:
			s.Skipped++
		default:
			s.Errors++
		}
		s.Remaining--
		s.Pct = pct(s)
	})
	metrics.RecordJobItem(j.snap.Kind, string(outcome))
}

func (m *Manager) update(j *job, fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&j.snap)
}

// pct is the share of attempted items, rounded. An empty job is 100%
// once completed.
func pct(s *Snapshot) int {
	if s.Total == 0 {
		if s.Status == StatusCompleted {
			return 100
		}
		return 0
	}
	done := s.OK + s.Skipped + s.Errors
	return int(math.Round(100 * float64(done) / float64(s.Total)))
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
