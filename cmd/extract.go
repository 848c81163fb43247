package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
)

var (
	extractTier    string
	extractFormat  string
	extractTenant  string
	extractUser    string
	extractCompany string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a structured risk assessment from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, tier, err := readDocument(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Orchestrator.Extract(ctx, doc, tier)
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		zap.L().Info("extraction complete",
			zap.String("file", doc.Filename),
			zap.String("engine", string(out.Engine)),
			zap.Bool("degraded", out.Degraded),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// readDocument loads the file and resolves format and tier from flags,
// falling back to the file extension for the format.
func readDocument(path string) (model.RawDocument, model.Tier, error) {
	tier, err := model.ParseTier(extractTier)
	if err != nil {
		return model.RawDocument{}, "", err
	}

	formatTag := extractFormat
	if formatTag == "" {
		formatTag = filepath.Ext(path)
	}
	format, err := model.ParseFormat(formatTag)
	if err != nil {
		return model.RawDocument{}, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.RawDocument{}, "", eris.Wrapf(err, "read %s", path)
	}

	return model.RawDocument{
		Content:   data,
		Format:    format,
		Filename:  filepath.Base(path),
		TenantID:  extractTenant,
		UserID:    extractUser,
		CompanyID: extractCompany,
	}, tier, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractTier, "tier", string(model.TierBasic), "extraction tier: basic, advanced or complete")
	extractCmd.Flags().StringVar(&extractFormat, "format", "", "document format (default from file extension)")
	extractCmd.Flags().StringVar(&extractTenant, "tenant", "cli", "tenant ID for usage accounting")
	extractCmd.Flags().StringVar(&extractUser, "user", "cli", "user ID for usage accounting")
	extractCmd.Flags().StringVar(&extractCompany, "company", "", "company ID for usage accounting")
	rootCmd.AddCommand(extractCmd)
}
