package main

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/importer"
	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo artifacts for exploring the review workflow",
	Long:  "Seeds a belief without snapshot grounding, a belief with a newer snapshot available, and an open question. Running seed twice is safe; existing artifacts are skipped.",
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

		now := time.Now().UTC()
		created, skipped := 0, 0

		save := func(a model.Artifact) error {
			err := st.SaveArtifact(ctx, a)
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrImmutableViolation):
				skipped++
			default:
				return err
			}
			return nil
		}

		if err := seedArtifacts(ctx, now, save); err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

func seedArtifacts(ctx context.Context, now time.Time, save func(model.Artifact) error) error {
	dec := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}

	oldAsOf := now.AddDate(0, -3, 0)
	newAsOf := now.AddDate(0, 0, -7)

	oldSnap, err := model.NewSnapshot(
		model.SnapshotMetadata{
			SnapshotID:  importer.SnapshotID("ACME", oldAsOf),
			AsOf:        oldAsOf,
			DataSources: []string{"seed"},
		},
		model.CompanyIdentity{Ticker: "ACME", Name: "Acme Industries", Sector: "Industrials"},
		model.MarketState{CurrentPrice: dec("812.40"), Currency: "INR", MarketCap: dec("48200000000")},
		model.FinancialSummary{RevenueFY: dec("12500000000"), NetProfitFY: dec("1430000000")},
		model.BalanceSheetSignals{TotalDebt: dec("2100000000"), CashAndEquivalents: dec("3400000000")},
		"Seeded quarterly-results snapshot.",
	)
	if err != nil {
		return err
	}
	if err := save(oldSnap); err != nil {
		return err
	}

	newSnap, err := model.NewSnapshot(
		model.SnapshotMetadata{
			SnapshotID:  importer.SnapshotID("ACME", newAsOf),
			AsOf:        newAsOf,
			DataSources: []string{"seed"},
		},
		model.CompanyIdentity{Ticker: "ACME", Name: "Acme Industries", Sector: "Industrials"},
		model.MarketState{CurrentPrice: dec("901.15"), Currency: "INR", MarketCap: dec("53500000000")},
		model.FinancialSummary{RevenueFY: dec("14100000000"), NetProfitFY: dec("1610000000")},
		model.BalanceSheetSignals{TotalDebt: dec("1900000000"), CashAndEquivalents: dec("3900000000")},
		"Seeded snapshot after annual results.",
	)
	if err != nil {
		return err
	}
	if err := save(newSnap); err != nil {
		return err
	}

	groundedBelief, err := model.NewReasoningArtifact(
		"seed-belief-grounded",
		oldAsOf.AddDate(0, 0, 1),
		model.ActorHuman,
		model.TypeThesis,
		model.Subject{EntityType: model.SubjectCompany, EntityID: "ACME"},
		model.References{SnapshotIDs: []string{oldSnap.Metadata.SnapshotID}},
		model.Claim{Statement: "Acme's margin expansion survives the capex cycle.", Stance: model.StanceBullish},
		model.ReasoningDetail{
			Rationale:   []string{"Operating margin held through two downturns.", "Order book covers 18 months of revenue."},
			Assumptions: []string{"No major raw material shock."},
		},
		model.Confidence{Level: model.ConfidenceMedium, Rationale: "Thesis depends on one supplier relationship."},
		model.ReviewPointer{},
	)
	if err != nil {
		return err
	}
	if err := save(groundedBelief); err != nil {
		return err
	}

	ungroundedBelief, err := model.NewReasoningArtifact(
		"seed-belief-ungrounded",
		now.AddDate(0, -1, 0),
		model.ActorHuman,
		model.TypeRisk,
		model.Subject{EntityType: model.SubjectCompany, EntityID: "BETA"},
		model.References{},
		model.Claim{Statement: "Beta's customer concentration is worse than reported.", Stance: model.StanceBearish},
		model.ReasoningDetail{Rationale: []string{"Top-three customer disclosure stopped in the latest annual report."}},
		model.Confidence{Level: model.ConfidenceLow, Rationale: "No snapshot recorded yet."},
		model.ReviewPointer{},
	)
	if err != nil {
		return err
	}
	if err := save(ungroundedBelief); err != nil {
		return err
	}

	question, err := model.NewReasoningArtifact(
		"seed-question-open",
		now.AddDate(0, 0, -14),
		model.ActorHuman,
		model.TypeQuestion,
		model.Subject{EntityType: model.SubjectCompany, EntityID: "ACME"},
		model.References{SnapshotIDs: []string{newSnap.Metadata.SnapshotID}},
		model.Claim{Statement: "Is the working capital build seasonal or structural?", Stance: model.StanceExploratory},
		model.ReasoningDetail{},
		model.Confidence{},
		model.ReviewPointer{},
	)
	if err != nil {
		return err
	}
	return save(question)
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
