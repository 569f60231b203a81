package analysis

import (
	"context"
	"time"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// UngroundedBelief is a belief with an empty snapshot reference list.
type UngroundedBelief struct {
	BeliefID   string `json:"belief_id"`
	BeliefText string `json:"belief_text"`
}

// OrphanSnapshot is a snapshot no belief references.
type OrphanSnapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	Ticker     string    `json:"ticker"`
	AsOf       time.Time `json:"as_of"`
	AgeDays    int       `json:"age_days"`
}

// OrphanReport partitions the corpus into ungrounded beliefs and
// unreferenced snapshots.
type OrphanReport struct {
	BeliefsWithoutSnapshots    []UngroundedBelief `json:"beliefs_without_snapshots"`
	SnapshotsWithoutDependents []OrphanSnapshot   `json:"snapshots_without_dependents"`
}

// IntegrityService detects artifacts that have come loose from the
// reference graph. Read-only; never consults the lifecycle log.
type IntegrityService struct {
	store store.Store
}

// NewIntegrityService creates an IntegrityService.
func NewIntegrityService(st store.Store) *IntegrityService {
	return &IntegrityService{store: st}
}

// Orphans reports beliefs with no snapshot grounding and snapshots no
// belief references. A snapshot referenced only by questions still
// counts as unreferenced: grounding is a belief-level concept.
func (s *IntegrityService) Orphans(ctx context.Context, now time.Time) (*OrphanReport, error) {
	artifacts, err := s.store.ListByKind(ctx, model.KindReasoning)
	if err != nil {
		return nil, err
	}
	snapshots, err := listSnapshots(ctx, s.store)
	if err != nil {
		return nil, err
	}
	now = model.EnsureUTC(now)

	report := &OrphanReport{
		BeliefsWithoutSnapshots:    []UngroundedBelief{},
		SnapshotsWithoutDependents: []OrphanSnapshot{},
	}

	referenced := make(map[string]struct{})
	for _, a := range artifacts {
		ra, ok := a.(*model.ReasoningArtifact)
		if !ok || !ra.IsBelief() {
			continue
		}
		if len(ra.References.SnapshotIDs) == 0 {
			report.BeliefsWithoutSnapshots = append(report.BeliefsWithoutSnapshots, UngroundedBelief{
				BeliefID:   ra.ReasoningID,
				BeliefText: ra.Claim.Statement,
			})
			continue
		}
		for _, sid := range ra.References.SnapshotIDs {
			referenced[sid] = struct{}{}
		}
	}

	for _, snap := range snapshots {
		if _, ok := referenced[snap.Metadata.SnapshotID]; ok {
			continue
		}
		report.SnapshotsWithoutDependents = append(report.SnapshotsWithoutDependents, OrphanSnapshot{
			SnapshotID: snap.Metadata.SnapshotID,
			Ticker:     snap.Company.Ticker,
			AsOf:       snap.Metadata.AsOf,
			AgeDays:    int(now.Sub(model.EnsureUTC(snap.Metadata.AsOf)).Hours() / 24),
		})
	}
	return report, nil
}
