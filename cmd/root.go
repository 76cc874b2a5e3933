package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Grounded-answer validation pipeline for legal research",
	Long:  "Retrieves legal sources, generates grounded answers, validates every citation, scores confidence, and gates low-quality answers behind human review.",
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
