package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
	"github.com/nhle/inbox-companion/internal/sync"
)

var (
	serveSummarizeEvery time.Duration
	serveSummarizeLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background poller and expose metrics",
	Long: `Poll every configured mailbox on sync.poll_interval_sec and serve
prometheus metrics on metrics.addr. With --summarize-every, messages that
lack a current analysis are queued for the model on that interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cur)
	},
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger.Named("serve")

	poller := sync.NewPoller(a.engine, a.engine.Mailboxes(), a.cfg.Sync.PollInterval(), a.cfg.Sync.PollLimit, logger)
	poller.Start(ctx)
	defer poller.Stop()

	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if serveSummarizeEvery > 0 {
		g.Go(func() error {
			autoSummarize(ctx, a.svc, serveSummarizeEvery, serveSummarizeLimit, logger)
			return nil
		})
	}

	g.Go(func() error {
		reportStatus(ctx, poller, a.svc, a.cfg.Sync.PollInterval(), logger)
		return nil
	})

	logger.Info("serving",
		zap.Strings("mailboxes", a.engine.Mailboxes()),
		zap.Duration("poll_interval", a.cfg.Sync.PollInterval()),
	)
	err := g.Wait()
	logger.Info("shutting down")
	return err
}

// autoSummarize queues every message lacking a current analysis, unless a
// summarize job is still in flight.
func autoSummarize(ctx context.Context, svc *inbox.Service, every time.Duration, limit int, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if busy(svc.ListJobs(jobs.KindSummarize)) {
			logger.Debug("summarize job still running, skipping tick")
			continue
		}
		id, err := svc.SubmitSummarizeJob(ctx, inbox.SummarizeRequest{AllMissing: true, Limit: limit})
		if err != nil {
			logger.Warn("queueing summarize job", zap.Error(err))
			continue
		}
		if id == "" {
			continue
		}
		if snap, ok := svc.GetJob(id); ok {
			logger.Info("summarize job queued", zap.String("job_id", id), zap.Int("total", snap.Total))
		}
	}
}

func busy(snaps []jobs.Snapshot) bool {
	for _, s := range snaps {
		if s.Status != jobs.StatusCompleted {
			return true
		}
	}
	return false
}

// reportStatus logs poller state and the most recent job after every
// interval.
func reportStatus(ctx context.Context, p *sync.Poller, svc *inbox.Service, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, st := range p.Statuses() {
			fields := []zap.Field{
				zap.String("mailbox", st.Mailbox),
				zap.Stringer("state", st.State),
				zap.Time("last_sync", st.LastSync),
				zap.Int("inserted", st.LastResult.Inserted),
				zap.Int("updated", st.LastResult.Updated),
			}
			switch {
			case st.AuthFailed:
				logger.Error("imap login rejected; run 'inboxd credential set'", fields...)
			case st.Error != nil:
				logger.Warn("poll failing", append(fields, zap.Error(st.Error))...)
			default:
				logger.Debug("poll status", fields...)
			}
		}

		if recent := svc.ListJobs(""); len(recent) > 0 {
			j := recent[0]
			logger.Debug("latest job",
				zap.String("job_id", j.ID),
				zap.String("status", string(j.Status)),
				zap.Int("pct", j.Pct),
			)
		}
	}
}

func init() {
	serveCmd.Flags().DurationVar(&serveSummarizeEvery, "summarize-every", 0, "Queue unanalyzed messages on this interval (0: off)")
	serveCmd.Flags().IntVar(&serveSummarizeLimit, "summarize-limit", 50, "Maximum messages per automatic summarize job")

	rootCmd.AddCommand(serveCmd)
}
