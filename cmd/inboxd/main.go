package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/display"
	"github.com/nhle/inbox-companion/internal/model"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath string
	jsonOutput bool
	debugFlag  bool
	cur        *app
)

var rootCmd = &cobra.Command{
	Use:           "inboxd",
	Short:         "inboxd - local mail sync, search and LLM triage",
	Long:          "inboxd mirrors IMAP mailboxes into a local SQLite store, indexes them for full-text search and ranks them with a local language model.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return nil
		}
		if cmd.HasParent() && cmd.Parent().Name() == "completion" {
			return nil
		}

		var err error
		cur, err = openApp(configPath, debugFlag)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cur != nil {
			cur.Close()
			cur = nil
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "inboxd version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if cur != nil {
			cur.Close()
		}
		display.ErrorMsg(os.Stderr, "%s", apperr.Message(err))
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to distinct exit statuses for scripting.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return 2
	case apperr.KindNotFound:
		return 3
	case apperr.KindConnectivity:
		return 4
	default:
		return 1
	}
}
