package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/riskdoc/internal/billing"
)

var marginPeriod string

var marginCmd = &cobra.Command{
	Use:   "margin <tenant-id>",
	Short: "Compute a tenant's gross margin for a month",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		period, err := billing.ParsePeriod(marginPeriod, time.Now())
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Margins.MarginForTenant(ctx, args[0], period)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	marginCmd.Flags().StringVar(&marginPeriod, "period", "", "billing month as YYYY-MM (default current month)")
	rootCmd.AddCommand(marginCmd)
}
