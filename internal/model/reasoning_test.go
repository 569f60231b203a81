package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReasoningArgs() (string, time.Time, Actor, ReasoningType, Subject, References, Claim, ReasoningDetail, Confidence, ReviewPointer) {
	return "r-1",
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		ActorHuman,
		TypeThesis,
		Subject{EntityType: SubjectCompany, EntityID: "ACME"},
		References{SnapshotIDs: []string{"snap-1"}},
		Claim{Statement: "Margins hold.", Stance: StanceBullish},
		ReasoningDetail{Rationale: []string{"Track record."}},
		Confidence{Level: ConfidenceMedium},
		ReviewPointer{}
}

func TestNewReasoningArtifact_Valid(t *testing.T) {
	id, at, by, typ, subj, refs, claim, detail, conf, review := validReasoningArgs()

	r, err := NewReasoningArtifact(id, at, by, typ, subj, refs, claim, detail, conf, review)
	require.NoError(t, err)

	assert.Equal(t, "r-1", r.ReasoningID)
	assert.Equal(t, SchemaV1, r.SchemaVersionID)
	assert.Equal(t, TypeThesis, r.ArtifactType)
	assert.Equal(t, []string{"snap-1"}, r.References.SnapshotIDs)
}

func TestNewReasoningArtifact_RequiresID(t *testing.T) {
	_, at, by, typ, subj, refs, claim, detail, conf, review := validReasoningArgs()

	_, err := NewReasoningArtifact("", at, by, typ, subj, refs, claim, detail, conf, review)
	assert.Error(t, err)
}

func TestNewReasoningArtifact_RequiresCreatedAt(t *testing.T) {
	id, _, by, typ, subj, refs, claim, detail, conf, review := validReasoningArgs()

	_, err := NewReasoningArtifact(id, time.Time{}, by, typ, subj, refs, claim, detail, conf, review)
	assert.Error(t, err)
}

func TestNewReasoningArtifact_RejectsUnknownType(t *testing.T) {
	id, at, by, _, subj, refs, claim, detail, conf, review := validReasoningArgs()

	_, err := NewReasoningArtifact(id, at, by, "hunch", subj, refs, claim, detail, conf, review)
	assert.Error(t, err)
}

func TestNewReasoningArtifact_RequiresStatement(t *testing.T) {
	id, at, by, typ, subj, refs, _, detail, conf, review := validReasoningArgs()

	_, err := NewReasoningArtifact(id, at, by, typ, subj, refs, Claim{Stance: StanceBullish}, detail, conf, review)
	assert.Error(t, err)
}

func TestIsBelief(t *testing.T) {
	cases := map[ReasoningType]bool{
		TypeThesis:   true,
		TypeRisk:     true,
		TypeQuestion: false,
	}
	for typ, want := range cases {
		r := &ReasoningArtifact{ArtifactType: typ}
		assert.Equal(t, want, r.IsBelief(), "type %s", typ)
	}
}

func TestNewSnapshot_Validation(t *testing.T) {
	_, err := NewSnapshot(SnapshotMetadata{AsOf: time.Now()}, CompanyIdentity{}, MarketState{}, FinancialSummary{}, BalanceSheetSignals{}, "")
	assert.Error(t, err)

	_, err = NewSnapshot(SnapshotMetadata{SnapshotID: "snap-1"}, CompanyIdentity{}, MarketState{}, FinancialSummary{}, BalanceSheetSignals{}, "")
	assert.Error(t, err)
}

func TestNewSnapshot_DefaultsSchemaVersion(t *testing.T) {
	snap, err := NewSnapshot(
		SnapshotMetadata{SnapshotID: "snap-1", AsOf: time.Now()},
		CompanyIdentity{Ticker: "ACME"},
		MarketState{}, FinancialSummary{}, BalanceSheetSignals{}, "",
	)
	require.NoError(t, err)
	assert.Equal(t, SchemaV1, snap.SchemaVersion())
}
