package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/display"
	"github.com/nhle/inbox-companion/internal/sync"
)

var (
	pollMailbox string
	pollLimit   int

	backfillMailbox    string
	backfillDays       int
	backfillOnlyUnseen bool
	backfillLimit      int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize mailboxes with the IMAP server",
}

type pollOutput struct {
	Mailbox string       `json:"mailbox"`
	Result  *sync.Result `json:"result"`
	Error   string       `json:"error,omitempty"`
}

var syncPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch new mail and refresh flags of recent messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		mailboxes := cur.engine.Mailboxes()
		if pollMailbox != "" {
			mailboxes = []string{pollMailbox}
		}
		limit := pollLimit
		if limit <= 0 {
			limit = cur.cfg.Sync.PollLimit
		}

		var (
			out  []pollOutput
			errs []error
		)
		for _, mb := range mailboxes {
			res, err := cur.svc.SyncPollRecent(cmd.Context(), mb, limit)
			o := pollOutput{Mailbox: mb, Result: res}
			if err != nil {
				o.Error = err.Error()
				errs = append(errs, err)
			}
			out = append(out, o)

			if !jsonOutput {
				display.SyncResult(cmd.OutOrStdout(), mb, res)
			}
		}

		if jsonOutput {
			if err := display.JSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
		}
		return errors.Join(errs...)
	},
}

var syncBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest historical mail from the last N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := cur.svc.SyncBackfill(cmd.Context(), sync.BackfillOptions{
			Mailbox:    backfillMailbox,
			SinceDays:  backfillDays,
			OnlyUnseen: backfillOnlyUnseen,
			Limit:      backfillLimit,
		})
		if res != nil {
			if jsonOutput {
				if jerr := display.JSON(cmd.OutOrStdout(), res); jerr != nil {
					return jerr
				}
			} else {
				label := backfillMailbox
				if label == "" {
					label = "all mailboxes"
				}
				display.SyncResult(cmd.OutOrStdout(), label, res)
			}
		}
		return err
	},
}

func init() {
	syncPollCmd.Flags().StringVar(&pollMailbox, "mailbox", "", "Mailbox to poll (default: all configured)")
	syncPollCmd.Flags().IntVar(&pollLimit, "limit", 0, "Maximum new messages per mailbox (default: sync.poll_limit)")

	syncBackfillCmd.Flags().StringVar(&backfillMailbox, "mailbox", "", "Mailbox to backfill (default: all configured)")
	syncBackfillCmd.Flags().IntVar(&backfillDays, "days", 30, "Number of days to look back")
	syncBackfillCmd.Flags().BoolVar(&backfillOnlyUnseen, "only-unseen", false, "Only ingest unread messages")
	syncBackfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "Maximum messages per mailbox (0: no cap)")

	syncCmd.AddCommand(syncPollCmd, syncBackfillCmd)
	rootCmd.AddCommand(syncCmd)
}
