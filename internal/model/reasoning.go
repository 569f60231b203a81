package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Actor identifies who recorded an artifact or event.
type Actor string

const (
	ActorHuman  Actor = "human"
	ActorSystem Actor = "system"
)

// ReasoningType distinguishes theses, risks, and questions. Thesis and
// risk share a review lifecycle ("beliefs"); questions do not.
type ReasoningType string

const (
	TypeThesis   ReasoningType = "thesis"
	TypeRisk     ReasoningType = "risk"
	TypeQuestion ReasoningType = "question"
)

// Stance is the directional posture of a claim.
type Stance string

const (
	StanceBullish     Stance = "bullish"
	StanceBearish     Stance = "bearish"
	StanceNeutral     Stance = "neutral"
	StanceExploratory Stance = "exploratory"
)

// ConfidenceLevel grades how strongly a claim or view is held.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// SubjectEntityType scopes what a reasoning artifact is about.
type SubjectEntityType string

const (
	SubjectCompany   SubjectEntityType = "company"
	SubjectPortfolio SubjectEntityType = "portfolio"
	SubjectPosition  SubjectEntityType = "position"
)

// Subject names the entity a claim is about.
type Subject struct {
	EntityType SubjectEntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
}

// References ground a claim in specific artifacts. Fixed at creation.
type References struct {
	SnapshotIDs         []string `json:"snapshot_ids"`
	DerivedMetricSetIDs []string `json:"derived_metric_set_ids"`
	AnalysisViewIDs     []string `json:"analysis_view_ids"`
}

// Claim is the statement being recorded plus its stance.
type Claim struct {
	Statement string `json:"statement"`
	Stance    Stance `json:"stance"`
}

// ReasoningDetail carries the supporting reasoning as ordered lists.
type ReasoningDetail struct {
	Rationale     []string `json:"rationale"`
	Assumptions   []string `json:"assumptions"`
	Counterpoints []string `json:"counterpoints"`
}

// Confidence pairs a level with the rationale behind it.
type Confidence struct {
	Level     ConfidenceLevel `json:"confidence_level"`
	Rationale string          `json:"confidence_rationale"`
}

// ReviewPointer optionally schedules the next review.
type ReviewPointer struct {
	ReviewBy      *time.Time `json:"review_by,omitempty"`
	ReviewTrigger string     `json:"review_trigger,omitempty"`
}

// ReasoningArtifact is an immutable thesis, risk, or question.
// Statement and references are fixed at creation; review and
// disposition live in the lifecycle log, never in the artifact.
type ReasoningArtifact struct {
	ReasoningID     string          `json:"reasoning_id"`
	SchemaVersionID string          `json:"schema_version"`
	CreatedAt       time.Time       `json:"created_at"`
	CreatedBy       Actor           `json:"created_by"`
	ArtifactType    ReasoningType   `json:"artifact_type"`
	Subject         Subject         `json:"subject"`
	References      References      `json:"references"`
	Claim           Claim           `json:"claim"`
	Reasoning       ReasoningDetail `json:"reasoning"`
	Confidence      Confidence      `json:"confidence"`
	Review          ReviewPointer   `json:"review"`
}

// NewReasoningArtifact validates and constructs a ReasoningArtifact.
func NewReasoningArtifact(id string, createdAt time.Time, createdBy Actor, artifactType ReasoningType, subject Subject, refs References, claim Claim, detail ReasoningDetail, confidence Confidence, review ReviewPointer) (*ReasoningArtifact, error) {
	if id == "" {
		return nil, eris.New("reasoning artifact: reasoning_id is required")
	}
	if createdAt.IsZero() {
		return nil, eris.New("reasoning artifact: created_at is required")
	}
	switch artifactType {
	case TypeThesis, TypeRisk, TypeQuestion:
	default:
		return nil, eris.Errorf("reasoning artifact: unknown artifact_type %q", artifactType)
	}
	if claim.Statement == "" {
		return nil, eris.New("reasoning artifact: claim statement is required")
	}
	return &ReasoningArtifact{
		ReasoningID:     id,
		SchemaVersionID: SchemaV1,
		CreatedAt:       createdAt,
		CreatedBy:       createdBy,
		ArtifactType:    artifactType,
		Subject:         subject,
		References:      refs,
		Claim:           claim,
		Reasoning:       detail,
		Confidence:      confidence,
		Review:          review,
	}, nil
}

// IsBelief reports whether the artifact is a thesis or risk. Questions
// have no review lifecycle.
func (r *ReasoningArtifact) IsBelief() bool {
	return r.ArtifactType == TypeThesis || r.ArtifactType == TypeRisk
}

func (r *ReasoningArtifact) ArtifactID() string      { return r.ReasoningID }
func (r *ReasoningArtifact) Kind() ArtifactKind      { return KindReasoning }
func (r *ReasoningArtifact) SchemaVersion() string   { return r.SchemaVersionID }
func (r *ReasoningArtifact) CreatedStamp() time.Time { return r.CreatedAt }
func (r *ReasoningArtifact) sealed()                 {}
