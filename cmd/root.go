package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "riskdoc",
	Short: "Risk-assessment document ingestion and extraction",
	Long:  "Extracts text from uploaded risk-assessment documents, structures it through tiered AI providers with deterministic fallback, and accounts for every provider call.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
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
