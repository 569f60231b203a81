package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run a proposal pass and print the weekly review",
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

		s := newServer(st, cfg.Review.ProposalTTLDays, nil)
		review, err := s.buildWeeklyReview(ctx, time.Now().UTC())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(review); err != nil {
			return eris.Wrap(err, "encode weekly review")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
