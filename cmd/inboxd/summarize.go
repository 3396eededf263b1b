package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/display"
	"github.com/nhle/inbox-companion/internal/inbox"
	"github.com/nhle/inbox-companion/internal/jobs"
)

var (
	summarizeAllMissing bool
	summarizeLimit      int
	summarizeForce      bool
	summarizeModel      string
)

// progressInterval is how often summarize reports job progress.
const progressInterval = 2 * time.Second

var summarizeCmd = &cobra.Command{
	Use:   "summarize [MESSAGE_ID...]",
	Short: "Analyze messages with the language model",
	Long: `Analyze the given messages, or every message without a current
analysis when --all-missing is set. The command waits for the job and
reports its progress. Cached analyses are reused unless --force is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := inbox.SummarizeRequest{
			AllMissing: summarizeAllMissing,
			Limit:      summarizeLimit,
			Options:    jobs.Options{Force: summarizeForce, Model: summarizeModel},
		}
		if !summarizeAllMissing {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			req.IDs = ids
		}

		id, err := cur.svc.SubmitSummarizeJob(cmd.Context(), req)
		if err != nil {
			return err
		}
		if id == "" {
			if jsonOutput {
				return display.JSON(cmd.OutOrStdout(), jobs.Snapshot{Status: jobs.StatusCompleted, Pct: 100})
			}
			display.SuccessMsg(cmd.OutOrStdout(), "every message already has a current analysis")
			return nil
		}

		w := cmd.ErrOrStderr()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		done := make(chan struct{})
		var (
			snap    jobs.Snapshot
			waitErr error
		)
		go func() {
			defer close(done)
			snap, waitErr = cur.svc.WaitJob(cmd.Context(), id)
		}()

	wait:
		for {
			select {
			case <-done:
				break wait
			case <-ticker.C:
				if s, ok := cur.svc.GetJob(id); ok && !jsonOutput {
					fmt.Fprintf(w, "%s %d/%d (%d%%)\n", display.Muted.Render("progress"), s.Total-s.Remaining, s.Total, s.Pct)
				}
			}
		}
		if waitErr != nil {
			return waitErr
		}

		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), snap)
		}
		display.Job(cmd.OutOrStdout(), snap)
		if snap.Errors > 0 {
			display.ErrorMsg(w, "%d message(s) failed; see 'inboxd analysis ID' for details", snap.Errors)
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeAllMissing, "all-missing", false, "Analyze every message without a current analysis")
	summarizeCmd.Flags().IntVar(&summarizeLimit, "limit", 0, "With --all-missing, analyze at most N messages, newest first (0: all)")
	summarizeCmd.Flags().BoolVar(&summarizeForce, "force", false, "Ignore cached analyses")
	summarizeCmd.Flags().StringVar(&summarizeModel, "model", "", "Model name (default: llm.model)")

	rootCmd.AddCommand(summarizeCmd)
}
