package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-companion/internal/display"
)

var pingTimeout time.Duration

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the language model endpoint",
}

type pingOutput struct {
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	Available bool     `json:"model_available"`
	Models    []string `json:"models"`
}

var llmPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "List the models served by the endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()

		models, err := cur.svc.PingLLM(ctx)
		if err != nil {
			return err
		}

		out := pingOutput{
			BaseURL:   cur.cfg.LLM.BaseURL,
			Model:     cur.llm.Model(),
			Available: slices.Contains(models, cur.llm.Model()),
			Models:    models,
		}
		if jsonOutput {
			return display.JSON(cmd.OutOrStdout(), out)
		}

		w := cmd.OutOrStdout()
		display.SuccessMsg(w, "%s reachable, %d model(s)", out.BaseURL, len(models))
		for _, m := range models {
			marker := " "
			if m == out.Model {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %s\n", marker, m)
		}
		if !out.Available {
			display.ErrorMsg(w, "configured model %q is not available", out.Model)
		}
		return nil
	},
}

func init() {
	llmPingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "Request timeout")

	llmCmd.AddCommand(llmPingCmd)
	rootCmd.AddCommand(llmCmd)
}
