// Package proposal turns analysis results into human-actionable
// proposals and keeps them honest over time. The engine is the only
// writer to the proposal set and never writes anywhere else: accepting
// or rejecting a proposal is an acknowledgment, not a mutation of any
// artifact or lifecycle log.
package proposal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/analysis"
	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// DefaultTTLDays is the retention window after which an unactioned
// pending proposal is force-expired.
const DefaultTTLDays = 30

// Engine evaluates the corpus and reconciles the proposal set against
// it.
type Engine struct {
	store     store.Store
	beliefs   *analysis.BeliefAnalysisService
	integrity *analysis.IntegrityService
	ttlDays   int
}

// NewEngine creates an Engine. A non-positive ttlDays falls back to
// DefaultTTLDays.
func NewEngine(st store.Store, ttlDays int) *Engine {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return &Engine{
		store:     st,
		beliefs:   analysis.NewBeliefAnalysisService(st),
		integrity: analysis.NewIntegrityService(st),
		ttlDays:   ttlDays,
	}
}

// Evaluate runs one reconciliation pass. The order is load-bearing:
// expiry runs before generation so a condition that resolved and
// re-triggered within one pass still cycles through a fresh proposal.
// Repeated calls with an unchanged corpus are a fixed point.
func (e *Engine) Evaluate(ctx context.Context, now time.Time) error {
	now = model.EnsureUTC(now)

	if err := e.expireTTL(ctx, now); err != nil {
		return err
	}

	stale, err := e.staleBeliefs(ctx, now)
	if err != nil {
		return err
	}
	orphans, err := e.integrity.Orphans(ctx, now)
	if err != nil {
		return err
	}
	ungrounded := make(map[string]analysis.UngroundedBelief, len(orphans.BeliefsWithoutSnapshots))
	for _, b := range orphans.BeliefsWithoutSnapshots {
		ungrounded[b.BeliefID] = b
	}

	if err := e.expireResolvedConditions(ctx, stale, ungrounded); err != nil {
		return err
	}
	if err := e.generateMissingGrounding(ctx, now, ungrounded); err != nil {
		return err
	}
	return e.generateStale(ctx, now, stale)
}

// Accept acknowledges a pending proposal. Only the proposal's status
// changes; calling it again, or on a terminal proposal, is a no-op.
func (e *Engine) Accept(ctx context.Context, proposalID string) error {
	return e.store.UpdateProposalStatus(ctx, proposalID, model.ProposalAccepted)
}

// Reject dismisses a pending proposal. Same write discipline as
// Accept.
func (e *Engine) Reject(ctx context.Context, proposalID string) error {
	return e.store.UpdateProposalStatus(ctx, proposalID, model.ProposalRejected)
}

func (e *Engine) expireTTL(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -e.ttlDays)
	n, err := e.store.ExpirePendingOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		zap.L().Info("expired pending proposals past retention", zap.Int("count", n))
	}
	return nil
}

// expireResolvedConditions expires every non-expired proposal whose
// triggering condition no longer holds, per type independently. This
// is the only path by which an accepted or rejected proposal changes
// status.
func (e *Engine) expireResolvedConditions(ctx context.Context, stale map[string]analysis.StaleBelief, ungrounded map[string]analysis.UngroundedBelief) error {
	reviewProps, err := e.store.ListProposals(ctx, store.ProposalFilter{
		Type:     model.ProposalReviewPrompt,
		Statuses: model.NonExpiredStatuses,
	})
	if err != nil {
		return err
	}
	for _, p := range reviewProps {
		if _, still := stale[p.Payload.BeliefID]; still {
			continue
		}
		if err := e.store.UpdateProposalStatus(ctx, p.ProposalID, model.ProposalExpired); err != nil {
			return err
		}
	}

	groundingProps, err := e.store.ListProposals(ctx, store.ProposalFilter{
		Type:     model.ProposalMissingGrounding,
		Statuses: model.NonExpiredStatuses,
	})
	if err != nil {
		return err
	}
	for _, p := range groundingProps {
		if _, still := ungrounded[p.Payload.BeliefID]; still {
			continue
		}
		if err := e.store.UpdateProposalStatus(ctx, p.ProposalID, model.ProposalExpired); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) generateMissingGrounding(ctx context.Context, now time.Time, ungrounded map[string]analysis.UngroundedBelief) error {
	for beliefID, belief := range ungrounded {
		open, err := e.hasOpenProposal(ctx, beliefID, model.ProposalMissingGrounding)
		if err != nil {
			return err
		}
		if open {
			continue
		}
		p := model.Proposal{
			ProposalID: uuid.NewString(),
			Type:       model.ProposalMissingGrounding,
			Status:     model.ProposalPending,
			CreatedAt:  now,
			Payload: model.ProposalPayload{
				BeliefID:   beliefID,
				BeliefText: belief.BeliefText,
				Condition:  model.Condition{Type: "missing_grounding", TriggeredAt: now},
			},
		}
		if err := e.store.CreateProposal(ctx, p); err != nil {
			return err
		}
		zap.L().Info("created missing_grounding proposal", zap.String("belief_id", beliefID))
	}
	return nil
}

func (e *Engine) generateStale(ctx context.Context, now time.Time, stale map[string]analysis.StaleBelief) error {
	for beliefID, item := range stale {
		open, err := e.hasOpenProposal(ctx, beliefID, model.ProposalReviewPrompt)
		if err != nil {
			return err
		}
		if open {
			continue
		}
		p := model.Proposal{
			ProposalID: uuid.NewString(),
			Type:       model.ProposalReviewPrompt,
			Status:     model.ProposalPending,
			CreatedAt:  now,
			Payload: model.ProposalPayload{
				BeliefID:           beliefID,
				BeliefText:         item.BeliefText,
				NewerSnapshotIDs:   item.NewerSnapshotIDs,
				AgeDaysSinceReview: item.AgeDaysSinceReview,
				Condition:          model.Condition{Type: "stale", TriggeredAt: now},
			},
		}
		if err := e.store.CreateProposal(ctx, p); err != nil {
			return err
		}
		zap.L().Info("created review_prompt proposal", zap.String("belief_id", beliefID))
	}
	return nil
}

// hasOpenProposal reports whether the (belief, type) slot is occupied
// by any non-expired proposal. Only expiry re-opens the slot.
func (e *Engine) hasOpenProposal(ctx context.Context, beliefID string, ptype model.ProposalType) (bool, error) {
	existing, err := e.store.ListProposals(ctx, store.ProposalFilter{
		Type:     ptype,
		Statuses: model.NonExpiredStatuses,
	})
	if err != nil {
		return false, err
	}
	for _, p := range existing {
		if p.Payload.BeliefID == beliefID {
			return true, nil
		}
	}
	return false, nil
}

// staleBeliefs flattens the grouped staleness report into a belief-id
// index.
func (e *Engine) staleBeliefs(ctx context.Context, now time.Time) (map[string]analysis.StaleBelief, error) {
	grouped, err := e.beliefs.BeliefsNeedingReview(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make(map[string]analysis.StaleBelief)
	for _, items := range grouped {
		for _, item := range items {
			out[item.BeliefID] = item
		}
	}
	return out, nil
}
