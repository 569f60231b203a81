package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/proposal"
	"github.com/sells-group/conviction-cli/internal/store"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one proposal engine pass",
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

		engine := proposal.NewEngine(st, cfg.Review.ProposalTTLDays)
		if err := engine.Evaluate(ctx, time.Now().UTC()); err != nil {
			return err
		}

		counts := map[model.ProposalStatus]int{}
		for _, status := range []model.ProposalStatus{
			model.ProposalPending, model.ProposalAccepted,
			model.ProposalRejected, model.ProposalExpired,
		} {
			proposals, err := st.ListProposals(ctx, store.ProposalFilter{Statuses: []model.ProposalStatus{status}})
			if err != nil {
				return err
			}
			counts[status] = len(proposals)
		}

		zap.L().Info("evaluation complete",
			zap.Int("pending", counts[model.ProposalPending]),
			zap.Int("accepted", counts[model.ProposalAccepted]),
			zap.Int("rejected", counts[model.ProposalRejected]),
			zap.Int("expired", counts[model.ProposalExpired]),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}
