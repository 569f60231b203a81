package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all artifacts, lifecycle events, and proposals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		if !resetConfirm {
			return eris.New("reset deletes all data; pass --confirm to proceed")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResetAll(ctx); err != nil {
			return err
		}

		zap.L().Info("store reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "confirm deletion of all data")
	rootCmd.AddCommand(resetCmd)
}
