package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/display"
)

var (
	memoryTTL time.Duration
	memoryAll bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage facts fed to the model as context",
}

var memorySetCmd = &cobra.Command{
	Use:   "set KIND KEY VALUE",
	Short: "Store or replace a memory fact",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cur.svc.SetMemory(cmd.Context(), args[0], args[1], args[2], memoryTTL); err != nil {
			return err
		}
		if !jsonOutput {
			display.SuccessMsg(cmd.OutOrStdout(), "stored %s/%s", args[0], args[1])
		}
		return nil
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := cur.svc.ListMemory(cmd.Context(), memoryAll)
		if err != nil {
			return err
		}
		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), items)
		}
		display.Memory(cmd.OutOrStdout(), items, time.Now())
		return nil
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete KIND KEY",
	Short: "Remove a memory fact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cur.svc.DeleteMemory(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		if !jsonOutput {
			display.SuccessMsg(cmd.OutOrStdout(), "deleted %s/%s", args[0], args[1])
		}
		return nil
	},
}

func init() {
	memorySetCmd.Flags().DurationVar(&memoryTTL, "ttl", 0, "Expire the fact after this duration (e.g. 72h)")
	memoryListCmd.Flags().BoolVar(&memoryAll, "all", false, "Include expired facts")

	memoryCmd.AddCommand(memorySetCmd, memoryListCmd, memoryDeleteCmd)
	rootCmd.AddCommand(memoryCmd)
}
