package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellar-k8s/carbonsched/internal/chain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider health",
	Long:  "Exercises the provider chain against the configured regions and prints per-provider health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		// Health counters only move when providers are called.
		eng.chain.WarmUp(ctx, eng.regions)

		formatHealth(os.Stdout, eng.chain.HealthReport())
		return nil
	},
}

func formatHealth(w io.Writer, report []chain.Health) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tFAILURES\tLAST SUCCESS\tLAST ERROR")
	for _, h := range report {
		lastSuccess := "never"
		if !h.LastSuccess.IsZero() {
			lastSuccess = h.LastSuccess.UTC().Format("2006-01-02 15:04:05")
		}
		lastError := h.LastError
		if lastError == "" {
			lastError = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", h.Provider, h.ConsecutiveFailures, lastSuccess, lastError)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
