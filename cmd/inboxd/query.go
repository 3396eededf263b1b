package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/display"
)

var (
	searchLimit int

	backlogLimit       int
	backlogMinPriority int
	backlogUnread      bool
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Full-text search over subjects, senders and bodies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := cur.svc.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), msgs)
		}
		display.Messages(cmd.OutOrStdout(), msgs, time.Now())
		return nil
	},
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "List messages by priority, highest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := cur.svc.GetBacklog(cmd.Context(), backlogLimit, backlogMinPriority, backlogUnread)
		if err != nil {
			return err
		}
		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), items)
		}
		display.Backlog(cmd.OutOrStdout(), items, time.Now())
		return nil
	},
}

var analysisCmd = &cobra.Command{
	Use:   "analysis MESSAGE_ID",
	Short: "Show the analysis of one message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		view, found, err := cur.svc.GetAnalysis(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFoundf("analysis", "message %d not found", id)
		}
		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), view)
		}
		display.Analysis(cmd.OutOrStdout(), view)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store counts and known labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, bodies, err := cur.svc.Stats(cmd.Context())
		if err != nil {
			return err
		}
		labels, err := cur.svc.Labels(cmd.Context())
		if err != nil {
			return err
		}

		names := make([]string, 0, len(labels))
		for _, l := range labels {
			names = append(names, l.Name)
		}

		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), map[string]any{
				"messages": msgs,
				"bodies":   bodies,
				"labels":   names,
			})
		}
		w := cmd.OutOrStdout()
		display.Header(w, "Store")
		display.Field(w, "Path", cur.cfg.Store.Path)
		display.Field(w, "Messages", strconv.Itoa(msgs))
		display.Field(w, "Bodies", strconv.Itoa(bodies))
		display.Field(w, "Labels", strings.Join(names, ", "))
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("parse", "invalid message id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Validationf("parse", "no message ids given (or use --all-missing)")
	}
	return ids, nil
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum results")

	backlogCmd.Flags().IntVar(&backlogLimit, "limit", 50, "Maximum results")
	backlogCmd.Flags().IntVar(&backlogMinPriority, "min-priority", 0, "Minimum priority (0-100)")
	backlogCmd.Flags().BoolVar(&backlogUnread, "unread", false, "Only unread messages")

	rootCmd.AddCommand(searchCmd, backlogCmd, analysisCmd, statsCmd)
}
