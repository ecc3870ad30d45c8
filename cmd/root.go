package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "carbonsched",
	Short: "Carbon-aware placement engine for validator clusters",
	Long:  "Scores candidate regions by grid carbon intensity, aggregates cluster sustainability metrics, and serves a read-only dashboard API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
