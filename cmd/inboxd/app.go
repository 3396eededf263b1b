package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/credential"
	"github.com/nhle/inbox-companion/internal/extract"
	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/llm"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/source/email"
	"github.com/nhle/inbox-companion/internal/store"
	"github.com/nhle/inbox-companion/internal/sync"
)

// app holds the components built from one configuration.
type app struct {
	cfg    *model.AppConfig
	logger *zap.Logger
	store  *store.SQLiteStore
	vault  *credential.Vault
	engine *sync.Engine
	llm    *llm.Client
	jobs   *jobs.Manager
	svc    *inbox.Service
}

func openApp(path string, debug bool) (*app, error) {
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	// The keyring is only needed when the config carries no password.
	var vault *credential.Vault
	if cfg.IMAP.Password == "" {
		if vault, err = credential.Open(); err != nil {
			logger.Warn("keyring unavailable", zap.Error(err))
			vault = nil
		}
	}

	a := &app{cfg: cfg, logger: logger, store: s, vault: vault}

	a.engine = sync.NewEngine(s, sync.DialerFunc(a.dialIMAP), extract.New(), sync.Options{
		Mailboxes:       cfg.IMAP.Mailboxes,
		PollLimit:       cfg.Sync.PollLimit,
		BackfillDaysMax: cfg.Sync.BackfillDaysMax,
		FetchChunk:      cfg.Sync.FetchChunk,
	}, logger)

	a.llm = llm.New(cfg.LLM, logger)

	a.jobs = jobs.NewManager(cfg.Jobs.Concurrency, logger)
	a.jobs.Register(jobs.KindSummarize, jobs.NewSummarizer(s, a.llm, logger))

	a.svc = inbox.NewService(s, a.engine, a.jobs, a.llm, logger)
	return a, nil
}

// dialIMAP resolves the password on every dial so that a credential
// stored while the daemon runs is picked up by the next poll.
func (a *app) dialIMAP(ctx context.Context) (sync.Session, error) {
	password, err := a.vault.IMAPPassword(a.cfg.IMAP)
	if err != nil {
		return nil, err
	}
	return sync.IMAPDialer(email.NewIMAPClient(a.cfg.IMAP, password)).Dial(ctx)
}

// Close waits briefly for running jobs, then releases the store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.jobs.Shutdown(ctx); err != nil {
		a.logger.Warn("jobs still running at exit", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
