// Package analysis answers read-only questions about the artifact
// corpus: which beliefs are stale, which have grounding gaps, which
// questions have gone unanswered, and which artifacts are orphaned.
// Every call recomputes from the current store state; nothing is
// cached.
package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// ErrNotABelief is returned when an operation scoped to beliefs is
// given a question or a snapshot id.
var ErrNotABelief = eris.New("operation only valid for thesis or risk artifacts")

// fallbackGroup collects items whose snapshot references resolved to
// no tickers.
const fallbackGroup = "uncoupled"

// StaleBelief is one belief with newer data than its last review.
type StaleBelief struct {
	BeliefID           string   `json:"belief_id"`
	BeliefText         string   `json:"belief_text"`
	AgeDaysSinceReview int      `json:"age_days_since_review"`
	NewerSnapshotIDs   []string `json:"newer_snapshot_ids"`
	CompanyTickers     []string `json:"company_tickers"`
}

// BeliefSummary is a belief row for display grouping, no staleness
// judgment attached.
type BeliefSummary struct {
	BeliefID       string   `json:"belief_id"`
	BeliefText     string   `json:"belief_text"`
	ArtifactType   string   `json:"artifact_type"`
	CompanyTickers []string `json:"company_tickers"`
}

// CoverageReport says whether a belief's snapshot grounding is
// adequate.
type CoverageReport struct {
	BeliefID    string   `json:"belief_id"`
	SnapshotIDs []string `json:"snapshot_ids"`
	CoverageGap bool     `json:"coverage_gap"`
}

// BeliefAnalysisService computes staleness and coverage over beliefs.
type BeliefAnalysisService struct {
	store store.Store
}

// NewBeliefAnalysisService creates a BeliefAnalysisService.
func NewBeliefAnalysisService(st store.Store) *BeliefAnalysisService {
	return &BeliefAnalysisService{store: st}
}

// BeliefsNeedingReview returns stale beliefs grouped by ticker key. A
// belief is stale when at least one snapshot of a ticker it already
// references carries an as_of strictly after the belief's last review.
// Beliefs with no resolved tickers are never stale.
func (s *BeliefAnalysisService) BeliefsNeedingReview(ctx context.Context, now time.Time) (map[string][]StaleBelief, error) {
	beliefs, err := s.listBeliefs(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := listSnapshots(ctx, s.store)
	if err != nil {
		return nil, err
	}
	now = model.EnsureUTC(now)

	var results []StaleBelief
	for _, belief := range beliefs {
		lastReview, err := s.lastReview(ctx, belief)
		if err != nil {
			return nil, err
		}

		tickers, err := resolveTickers(ctx, s.store, belief.References.SnapshotIDs)
		if err != nil {
			return nil, err
		}
		if len(tickers) == 0 {
			continue
		}

		var newer []string
		for _, snap := range snapshots {
			if !model.EnsureUTC(snap.Metadata.AsOf).After(lastReview) {
				continue
			}
			if _, ok := tickers[snap.Company.Ticker]; !ok {
				continue
			}
			newer = append(newer, snap.Metadata.SnapshotID)
		}
		if len(newer) == 0 {
			continue
		}

		results = append(results, StaleBelief{
			BeliefID:           belief.ReasoningID,
			BeliefText:         belief.Claim.Statement,
			AgeDaysSinceReview: int(now.Sub(lastReview).Hours() / 24),
			NewerSnapshotIDs:   newer,
			CompanyTickers:     sortedKeys(tickers),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AgeDaysSinceReview > results[j].AgeDaysSinceReview
	})
	zap.L().Debug("computed beliefs needing review", zap.Int("stale", len(results)))

	grouped := make(map[string][]StaleBelief)
	for _, item := range results {
		key := groupKey(item.CompanyTickers)
		grouped[key] = append(grouped[key], item)
	}
	return grouped, nil
}

// AllBeliefsGrouped returns every belief grouped by ticker key, with
// no staleness filter. Display and audit only.
func (s *BeliefAnalysisService) AllBeliefsGrouped(ctx context.Context) (map[string][]BeliefSummary, error) {
	beliefs, err := s.listBeliefs(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]BeliefSummary)
	for _, belief := range beliefs {
		tickers, err := resolveTickers(ctx, s.store, belief.References.SnapshotIDs)
		if err != nil {
			return nil, err
		}
		sorted := sortedKeys(tickers)
		key := groupKey(sorted)
		grouped[key] = append(grouped[key], BeliefSummary{
			BeliefID:       belief.ReasoningID,
			BeliefText:     belief.Claim.Statement,
			ArtifactType:   string(belief.ArtifactType),
			CompanyTickers: sorted,
		})
	}
	return grouped, nil
}

// SnapshotCoverage reports whether a belief's grounding has a gap:
// no references at all, an unresolvable reference, or a referenced
// snapshot that predates the belief itself. Checks short-circuit in
// that order.
func (s *BeliefAnalysisService) SnapshotCoverage(ctx context.Context, beliefID string) (*CoverageReport, error) {
	belief, err := s.getBelief(ctx, beliefID)
	if err != nil {
		return nil, err
	}

	report := &CoverageReport{
		BeliefID:    belief.ReasoningID,
		SnapshotIDs: belief.References.SnapshotIDs,
	}

	if len(belief.References.SnapshotIDs) == 0 {
		report.CoverageGap = true
		return report, nil
	}

	createdAt := model.EnsureUTC(belief.CreatedAt)
	for _, sid := range belief.References.SnapshotIDs {
		artifact, err := s.store.GetArtifact(ctx, sid)
		if err != nil {
			return nil, err
		}
		snap, ok := artifact.(*model.Snapshot)
		if !ok {
			report.CoverageGap = true
			return report, nil
		}
		if model.EnsureUTC(snap.Metadata.AsOf).Before(createdAt) {
			report.CoverageGap = true
			return report, nil
		}
	}
	return report, nil
}

// RecordReviewOutcome validates and appends a human review-outcome
// event for a belief. The note is bounded; an outcome outside the
// fixed set is model.ErrInvalidOutcome.
func (s *BeliefAnalysisService) RecordReviewOutcome(ctx context.Context, beliefID, rawOutcome, note string, now time.Time) (*model.LifecycleEvent, error) {
	belief, err := s.getBelief(ctx, beliefID)
	if err != nil {
		return nil, err
	}
	outcome, err := model.ParseOutcome(rawOutcome)
	if err != nil {
		return nil, err
	}

	ev := model.NewReviewOutcomeEvent(uuid.NewString(), belief.ReasoningID, model.EnsureUTC(now), outcome, strings.TrimSpace(note))
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	zap.L().Info("recorded review outcome",
		zap.String("belief_id", belief.ReasoningID),
		zap.String("outcome", string(outcome)))
	return &ev, nil
}

// lastReview is the occurred_at of the belief's most recent lifecycle
// event, or its created_at when the log is empty.
func (s *BeliefAnalysisService) lastReview(ctx context.Context, belief *model.ReasoningArtifact) (time.Time, error) {
	events, err := s.store.ListForBelief(ctx, belief.ReasoningID)
	if err != nil {
		return time.Time{}, err
	}
	if len(events) == 0 {
		return model.EnsureUTC(belief.CreatedAt), nil
	}
	return model.EnsureUTC(events[len(events)-1].OccurredAt), nil
}

func (s *BeliefAnalysisService) listBeliefs(ctx context.Context) ([]*model.ReasoningArtifact, error) {
	artifacts, err := s.store.ListByKind(ctx, model.KindReasoning)
	if err != nil {
		return nil, err
	}
	var beliefs []*model.ReasoningArtifact
	for _, a := range artifacts {
		ra, ok := a.(*model.ReasoningArtifact)
		if !ok || !ra.IsBelief() {
			continue
		}
		beliefs = append(beliefs, ra)
	}
	return beliefs, nil
}

func (s *BeliefAnalysisService) getBelief(ctx context.Context, beliefID string) (*model.ReasoningArtifact, error) {
	artifact, err := s.store.GetArtifact(ctx, beliefID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "belief %s", beliefID)
	}
	ra, ok := artifact.(*model.ReasoningArtifact)
	if !ok || !ra.IsBelief() {
		return nil, eris.Wrapf(ErrNotABelief, "artifact %s", beliefID)
	}
	return ra, nil
}

// listSnapshots loads every snapshot artifact.
func listSnapshots(ctx context.Context, st store.Store) ([]*model.Snapshot, error) {
	artifacts, err := st.ListByKind(ctx, model.KindSnapshot)
	if err != nil {
		return nil, err
	}
	snaps := make([]*model.Snapshot, 0, len(artifacts))
	for _, a := range artifacts {
		if snap, ok := a.(*model.Snapshot); ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// resolveTickers maps referenced snapshot ids to their tickers.
// Unresolvable ids and tickerless snapshots are skipped, not errors.
func resolveTickers(ctx context.Context, st store.Store, snapshotIDs []string) (map[string]struct{}, error) {
	tickers := make(map[string]struct{})
	for _, sid := range snapshotIDs {
		artifact, err := st.GetArtifact(ctx, sid)
		if err != nil {
			return nil, err
		}
		snap, ok := artifact.(*model.Snapshot)
		if !ok || snap == nil || snap.Company.Ticker == "" {
			continue
		}
		tickers[snap.Company.Ticker] = struct{}{}
	}
	return tickers, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// groupKey joins sorted tickers into a display key, falling back to
// "uncoupled" when none resolved.
func groupKey(tickers []string) string {
	if len(tickers) == 0 {
		return fallbackGroup
	}
	return strings.Join(tickers, ", ")
}
