package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/report"
	"github.com/sells-group/riskdoc/internal/store"
)

var (
	usageTenant string
	usageFrom   string
	usageTo     string
	usageStatus string
	usageOut    string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and review accounted provider usage",
}

var usageExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage events to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := usageFilter()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := report.ExportUsage(ctx, env.Store, filter)
		if err != nil {
			return err
		}
		if err := os.WriteFile(usageOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", usageOut)
		}

		zap.L().Info("usage exported", zap.String("path", usageOut), zap.Int("bytes", len(data)))
		return nil
	},
}

var usageReviewCmd = &cobra.Command{
	Use:   "review <usage-id> <validated|rejected>",
	Short: "Record the human review outcome of an AI result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status, err := model.ParseUsageStatus(args[1])
		if err != nil {
			return err
		}
		if status == model.UsageStatusPending {
			return eris.New("review status must be validated or rejected")
		}

		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.UpdateUsageStatus(ctx, args[0], status); err != nil {
			return eris.Wrapf(err, "review usage %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], status)
		return nil
	},
}

func usageFilter() (store.UsageFilter, error) {
	filter := store.UsageFilter{TenantID: usageTenant}
	if usageStatus != "" {
		s, err := model.ParseUsageStatus(usageStatus)
		if err != nil {
			return filter, err
		}
		filter.Status = s
	}
	if usageFrom != "" {
		t, err := time.Parse(time.DateOnly, usageFrom)
		if err != nil {
			return filter, eris.Wrap(err, "parse --from")
		}
		filter.From = t
	}
	if usageTo != "" {
		t, err := time.Parse(time.DateOnly, usageTo)
		if err != nil {
			return filter, eris.Wrap(err, "parse --to")
		}
		// Inclusive of the whole day.
		filter.To = t.AddDate(0, 0, 1)
	}
	return filter, nil
}

func init() {
	usageExportCmd.Flags().StringVar(&usageTenant, "tenant", "", "only this tenant")
	usageExportCmd.Flags().StringVar(&usageFrom, "from", "", "first day (YYYY-MM-DD)")
	usageExportCmd.Flags().StringVar(&usageTo, "to", "", "last day, inclusive (YYYY-MM-DD)")
	usageExportCmd.Flags().StringVar(&usageStatus, "status", "", "only this review status")
	usageExportCmd.Flags().StringVar(&usageOut, "out", "usage.xlsx", "output path")

	usageCmd.AddCommand(usageExportCmd, usageReviewCmd)
	rootCmd.AddCommand(usageCmd)
}
