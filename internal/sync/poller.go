package sync

import (
	"context"
	"slices"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/source"
)

// SyncState represents the current state of a mailbox poll.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the poll state for a single mailbox.
type SyncStatus struct {
	Mailbox    string
	State      SyncState
	LastSync   time.Time
	LastResult Result
	Error      error
	AuthFailed bool
}

// Runner is the polling operation the Poller drives.
type Runner interface {
	PollRecent(ctx context.Context, mailbox string, limit int) (*Result, error)
}

// pollTimeout bounds a single mailbox poll.
const pollTimeout = 10 * time.Minute

// Poller periodically polls every configured mailbox in the background.
type Poller struct {
	runner    Runner
	mailboxes []string
	interval  time.Duration
	limit     int
	logger    *zap.Logger

	statuses  map[string]*SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a Poller. A non-positive interval defaults to five
// minutes.
func NewPoller(r Runner, mailboxes []string, interval time.Duration, limit int, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	p := &Poller{
		runner:    r,
		mailboxes: slices.Clone(mailboxes),
		interval:  interval,
		limit:     limit,
		logger:    logging.OrNop(logger).Named("poller"),
		statuses:  make(map[string]*SyncStatus, len(mailboxes)),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, mb := range mailboxes {
		p.statuses[mb] = &SyncStatus{Mailbox: mb, State: SyncIdle}
	}
	return p
}

// Start launches the polling loop. The first poll runs immediately.
// Calling Start more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop halts the polling loop and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.done
}

// Trigger requests an immediate poll of all mailboxes. Requests made
// while one is already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Statuses returns the current poll status of every mailbox, sorted by
// name.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	slices.SortFunc(statuses, func(a, b SyncStatus) int {
		switch {
		case a.Mailbox < b.Mailbox:
			return -1
		case a.Mailbox > b.Mailbox:
			return 1
		}
		return 0
	})
	return statuses
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		case <-p.triggerCh:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, mb := range p.mailboxes {
		select {
		case <-p.stopCh:
			return
		default:
		}
		p.poll(ctx, mb)
	}
}

func (p *Poller) poll(parent context.Context, mailbox string) {
	p.setStatus(mailbox, SyncRunning, nil, nil)

	ctx, cancel := context.WithTimeout(parent, pollTimeout)
	defer cancel()

	res, err := p.runner.PollRecent(ctx, mailbox, p.limit)
	if err != nil {
		if source.IsAuthError(err) {
			p.logger.Error("mailbox rejected credentials", zap.String("mailbox", mailbox), zap.Error(err))
		} else {
			p.logger.Warn("poll failed", zap.String("mailbox", mailbox), zap.Error(err))
		}
		p.setStatus(mailbox, SyncError, res, err)
		return
	}
	p.setStatus(mailbox, SyncIdle, res, nil)
}

func (p *Poller) setStatus(mailbox string, state SyncState, res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[mailbox]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	status.AuthFailed = source.IsAuthError(err)
	if res != nil {
		status.LastResult = *res
	}
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
