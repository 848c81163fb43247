package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/monitoring"
)

var alertsSend bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate quota, import, churn and margin alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		alerts := env.Evaluator.AllAlerts(ctx)
		if alerts == nil {
			alerts = []monitoring.Alert{}
		}

		if alertsSend {
			sent := monitoring.NewAlerter(cfg.Monitoring).SendAlerts(ctx, alerts)
			zap.L().Info("alerts delivered", zap.Int("triggered", len(alerts)), zap.Int("sent", sent))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsSend, "send", false, "post alerts to the monitoring webhook")
	rootCmd.AddCommand(alertsCmd)
}
