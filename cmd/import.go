package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/importer"
)

var importFiles []string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import company snapshots from JSON files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		imp := importer.New(st, cfg.Import.Concurrency)

		totalImported, totalSkipped := 0, 0
		for _, path := range importFiles {
			summary, err := imp.ImportFile(ctx, path)
			if err != nil {
				return err
			}
			totalImported += summary.Imported
			totalSkipped += summary.Skipped
		}

		zap.L().Info("import complete",
			zap.Int("files", len(importFiles)),
			zap.Int("imported", totalImported),
			zap.Int("skipped", totalSkipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringSliceVar(&importFiles, "file", nil, "path to snapshot JSON file (repeatable)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
