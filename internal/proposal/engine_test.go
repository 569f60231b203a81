package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

func newTestStore(t *testing.T) (store.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st, dbPath
}

func mustSnapshot(t *testing.T, st store.Store, id, ticker string, asOf time.Time) {
	t.Helper()
	snap, err := model.NewSnapshot(
		model.SnapshotMetadata{SnapshotID: id, AsOf: asOf},
		model.CompanyIdentity{Ticker: ticker},
		model.MarketState{}, model.FinancialSummary{}, model.BalanceSheetSignals{}, "",
	)
	require.NoError(t, err)
	require.NoError(t, st.SaveArtifact(context.Background(), snap))
}

func mustBelief(t *testing.T, st store.Store, id string, createdAt time.Time, statement string, snapshotIDs ...string) {
	t.Helper()
	ra, err := model.NewReasoningArtifact(
		id, createdAt, model.ActorHuman, model.TypeThesis,
		model.Subject{EntityType: model.SubjectCompany, EntityID: "ACME"},
		model.References{SnapshotIDs: snapshotIDs},
		model.Claim{Statement: statement, Stance: model.StanceBullish},
		model.ReasoningDetail{}, model.Confidence{Level: model.ConfidenceMedium}, model.ReviewPointer{},
	)
	require.NoError(t, err)
	require.NoError(t, st.SaveArtifact(context.Background(), ra))
}

func listByType(t *testing.T, st store.Store, ptype model.ProposalType, statuses ...model.ProposalStatus) []model.Proposal {
	t.Helper()
	props, err := st.ListProposals(context.Background(), store.ProposalFilter{Type: ptype, Statuses: statuses})
	require.NoError(t, err)
	return props
}

// rewriteBeliefReferences edits a persisted belief's snapshot
// references directly in storage. Artifacts are immutable through the
// store API, so simulating "the world changed" requires going
// underneath it.
func rewriteBeliefReferences(t *testing.T, dbPath, beliefID string, snapshotIDs []string) {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var payload []byte
	require.NoError(t, db.QueryRow(`SELECT payload FROM artifacts WHERE artifact_id = ?`, beliefID).Scan(&payload))

	var belief model.ReasoningArtifact
	require.NoError(t, json.Unmarshal(payload, &belief))
	belief.References.SnapshotIDs = snapshotIDs

	updated, err := json.Marshal(&belief)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE artifacts SET payload = ? WHERE artifact_id = ?`, updated, beliefID)
	require.NoError(t, err)
}

// --- Generation ---

func TestEvaluate_GeneratesStaleProposal(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustSnapshot(t, st, "snap-old", "ACME", base)
	mustBelief(t, st, "belief-1", base.AddDate(0, 0, 1), "margins will expand", "snap-old")
	mustSnapshot(t, st, "snap-new", "ACME", base.AddDate(0, 0, 20))

	now := base.AddDate(0, 0, 25)
	require.NoError(t, engine.Evaluate(ctx, now))

	props := listByType(t, st, model.ProposalReviewPrompt, model.ProposalPending)
	require.Len(t, props, 1)
	p := props[0]
	assert.Equal(t, "belief-1", p.Payload.BeliefID)
	assert.Equal(t, "margins will expand", p.Payload.BeliefText)
	assert.Equal(t, []string{"snap-new"}, p.Payload.NewerSnapshotIDs)
	assert.Equal(t, 24, p.Payload.AgeDaysSinceReview)
	assert.Equal(t, "stale", p.Payload.Condition.Type)
	assert.True(t, p.Payload.Condition.TriggeredAt.Equal(now))
}

func TestEvaluate_GeneratesMissingGroundingProposal(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "claim with no grounding")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))

	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 1)
	assert.Equal(t, "belief-1", props[0].Payload.BeliefID)
	assert.Equal(t, "missing_grounding", props[0].Payload.Condition.Type)
	assert.Empty(t, props[0].Payload.NewerSnapshotIDs)
}

func TestEvaluate_QuietCorpusGeneratesNothing(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustSnapshot(t, st, "snap-1", "ACME", base.AddDate(0, 0, 2))
	mustBelief(t, st, "belief-1", base, "grounded and fresh", "snap-1")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 5)))

	all, err := st.ListProposals(ctx, store.ProposalFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// --- Idempotency and non-regeneration ---

func TestEvaluate_IsIdempotent(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustSnapshot(t, st, "snap-old", "ACME", base)
	mustBelief(t, st, "belief-stale", base.AddDate(0, 0, 1), "stale claim", "snap-old")
	mustSnapshot(t, st, "snap-new", "ACME", base.AddDate(0, 0, 20))
	mustBelief(t, st, "belief-loose", base, "ungrounded claim")

	now := base.AddDate(0, 0, 25)
	for i := 0; i < 5; i++ {
		require.NoError(t, engine.Evaluate(ctx, now))
	}

	all, err := st.ListProposals(ctx, store.ProposalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, p := range all {
		assert.Equal(t, model.ProposalPending, p.Status)
	}
}

func TestEvaluate_AcceptedProposalBlocksRegeneration(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "ungrounded claim")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 1)

	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))

	// Condition still true: the accepted proposal holds the slot.
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 2)))

	all := listByType(t, st, model.ProposalMissingGrounding,
		model.ProposalPending, model.ProposalAccepted, model.ProposalRejected, model.ProposalExpired)
	require.Len(t, all, 1)
	assert.Equal(t, model.ProposalAccepted, all[0].Status)
}

func TestEvaluate_RejectedProposalBlocksRegeneration(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "ungrounded claim")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 1)
	require.NoError(t, engine.Reject(ctx, props[0].ProposalID))

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 2)))

	all := listByType(t, st, model.ProposalMissingGrounding,
		model.ProposalPending, model.ProposalAccepted, model.ProposalRejected, model.ProposalExpired)
	require.Len(t, all, 1)
	assert.Equal(t, model.ProposalRejected, all[0].Status)
}

// --- TTL expiry ---

func TestEvaluate_TTLExpiryReopensSlot(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "ungrounded claim")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	first := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, first, 1)

	// 31 days later the pending proposal is past retention. Expiry runs
	// before generation, so the same pass opens a fresh one.
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 32)))

	expired := listByType(t, st, model.ProposalMissingGrounding, model.ProposalExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, first[0].ProposalID, expired[0].ProposalID)

	pending := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, pending, 1)
	assert.NotEqual(t, first[0].ProposalID, pending[0].ProposalID)
}

// --- Condition-resolution expiry ---

func TestEvaluate_ResolvedStalenessExpiresProposal(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustSnapshot(t, st, "snap-old", "ACME", base)
	mustBelief(t, st, "belief-1", base.AddDate(0, 0, 1), "stale claim", "snap-old")
	mustSnapshot(t, st, "snap-new", "ACME", base.AddDate(0, 0, 20))

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 25)))
	require.Len(t, listByType(t, st, model.ProposalReviewPrompt, model.ProposalPending), 1)

	// A review after the newest snapshot resolves the staleness.
	svcEvent := model.NewReviewOutcomeEvent("ev-1", "belief-1", base.AddDate(0, 0, 26), model.OutcomeReinforced, "")
	require.NoError(t, st.AppendEvent(ctx, svcEvent))

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 27)))

	assert.Empty(t, listByType(t, st, model.ProposalReviewPrompt, model.ProposalPending))
	assert.Len(t, listByType(t, st, model.ProposalReviewPrompt, model.ProposalExpired), 1)
}

func TestEvaluate_ConditionResolutionCycle(t *testing.T) {
	st, dbPath := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "cycling claim")

	// Ungrounded: a missing_grounding proposal appears.
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	first := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, first, 1)
	require.NoError(t, engine.Accept(ctx, first[0].ProposalID))

	// The belief gains a snapshot reference: condition resolved, the
	// accepted proposal expires on the next pass.
	rewriteBeliefReferences(t, dbPath, "belief-1", []string{"snap-x"})
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 2)))

	afterResolve := listByType(t, st, model.ProposalMissingGrounding,
		model.ProposalPending, model.ProposalAccepted, model.ProposalRejected, model.ProposalExpired)
	require.Len(t, afterResolve, 1)
	assert.Equal(t, model.ProposalExpired, afterResolve[0].Status)

	// The reference disappears again: a brand-new pending proposal.
	rewriteBeliefReferences(t, dbPath, "belief-1", nil)
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 3)))

	pending := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, pending, 1)
	assert.NotEqual(t, first[0].ProposalID, pending[0].ProposalID)
}

// --- Mutation firewall ---

// writeRecorder wraps a Store and counts writes to artifact and
// lifecycle storage.
type writeRecorder struct {
	store.Store
	artifactWrites int
	eventWrites    int
}

func (w *writeRecorder) SaveArtifact(ctx context.Context, a model.Artifact) error {
	w.artifactWrites++
	return w.Store.SaveArtifact(ctx, a)
}

func (w *writeRecorder) AppendEvent(ctx context.Context, ev model.LifecycleEvent) error {
	w.eventWrites++
	return w.Store.AppendEvent(ctx, ev)
}

func TestAcceptReject_TouchOnlyProposalStatus(t *testing.T) {
	inner, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, inner, "belief-1", base, "ungrounded claim")
	mustBelief(t, inner, "belief-2", base, "another ungrounded claim")

	recorder := &writeRecorder{Store: inner}
	engine := NewEngine(recorder, DefaultTTLDays)

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, inner, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 2)

	recorder.artifactWrites = 0
	recorder.eventWrites = 0

	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))
	require.NoError(t, engine.Reject(ctx, props[1].ProposalID))

	assert.Zero(t, recorder.artifactWrites)
	assert.Zero(t, recorder.eventWrites)

	events, err := inner.ListForBelief(ctx, "belief-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAccept_RepeatCallsAreNoOps(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "ungrounded claim")
	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 1)

	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))
	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))
	// A later reject must not flip an accepted proposal.
	require.NoError(t, engine.Reject(ctx, props[0].ProposalID))

	got, err := st.GetProposal(ctx, props[0].ProposalID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, got.Status)
}

// --- Display ---

func TestListForDisplay_ClustersByTypeAndExactText(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-a", base, "shared statement")
	mustBelief(t, st, "belief-b", base, "shared statement")
	mustBelief(t, st, "belief-c", base, "shared statement ") // trailing space: distinct key

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))

	display, err := engine.ListForDisplay(ctx, base.AddDate(0, 0, 1))
	require.NoError(t, err)

	byText := display[string(model.ProposalMissingGrounding)]
	require.NotNil(t, byText)
	assert.Len(t, byText["shared statement"], 2)
	assert.Len(t, byText["shared statement "], 1)
}

func TestListForDisplay_OmitsNonPending(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "claim one")
	mustBelief(t, st, "belief-2", base, "claim two")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 2)
	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))

	display, err := engine.ListForDisplay(ctx, base.AddDate(0, 0, 1))
	require.NoError(t, err)

	total := 0
	for _, byText := range display {
		for _, items := range byText {
			total += len(items)
		}
	}
	assert.Equal(t, 1, total)
}

func TestHistoryForDisplay_GroupsByTypeAndStatus(t *testing.T) {
	st, _ := newTestStore(t)
	engine := NewEngine(st, DefaultTTLDays)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustBelief(t, st, "belief-1", base, "claim one")
	mustBelief(t, st, "belief-2", base, "claim two")

	require.NoError(t, engine.Evaluate(ctx, base.AddDate(0, 0, 1)))
	props := listByType(t, st, model.ProposalMissingGrounding, model.ProposalPending)
	require.Len(t, props, 2)
	require.NoError(t, engine.Accept(ctx, props[0].ProposalID))

	history, err := engine.HistoryForDisplay(ctx, base.AddDate(0, 0, 11))
	require.NoError(t, err)

	byStatus := history[string(model.ProposalMissingGrounding)]
	require.NotNil(t, byStatus)
	assert.Len(t, byStatus[string(model.ProposalAccepted)], 1)
	assert.Len(t, byStatus[string(model.ProposalPending)], 1)
	assert.Equal(t, 10, byStatus[string(model.ProposalPending)][0].AgeDays)
	assert.Equal(t, "missing_grounding", byStatus[string(model.ProposalPending)][0].Condition.Type)
}
