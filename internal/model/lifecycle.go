package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// BeliefState is the disposition a belief can move through. Recorded
// in lifecycle events only; the artifact itself never changes.
type BeliefState string

const (
	StateActive      BeliefState = "active"
	StateUnderReview BeliefState = "under_review"
	StateSuperseded  BeliefState = "superseded"
	StateInvalidated BeliefState = "invalidated"
	StateRetired     BeliefState = "retired"
)

// TriggerType classifies what prompted a lifecycle event.
type TriggerType string

const (
	TriggerScheduledReview TriggerType = "scheduled_review"
	TriggerDataUpdate      TriggerType = "data_update"
	TriggerExternalEvent   TriggerType = "external_event"
	TriggerManual          TriggerType = "manual"
)

// EventKind separates state transitions from free-form review
// outcomes.
type EventKind string

const (
	EventStateTransition EventKind = "state_transition"
	EventReviewOutcome   EventKind = "review_outcome"
)

// ReviewOutcome is the fixed enumeration of human review judgments.
type ReviewOutcome string

const (
	OutcomeReinforced    ReviewOutcome = "reinforced"
	OutcomeSlightTension ReviewOutcome = "slight_tension"
	OutcomeStrongTension ReviewOutcome = "strong_tension"
	OutcomeInconclusive  ReviewOutcome = "inconclusive"
)

// ErrInvalidOutcome is returned for outcomes outside the fixed set.
var ErrInvalidOutcome = eris.New("outcome must be one of: reinforced, slight_tension, strong_tension, inconclusive")

// ParseOutcome validates a raw outcome string.
func ParseOutcome(s string) (ReviewOutcome, error) {
	switch ReviewOutcome(s) {
	case OutcomeReinforced, OutcomeSlightTension, OutcomeStrongTension, OutcomeInconclusive:
		return ReviewOutcome(s), nil
	}
	return "", ErrInvalidOutcome
}

// NoteMaxLen bounds the free-text note on a review outcome.
const NoteMaxLen = 500

// TruncateNote bounds a review note to NoteMaxLen runes.
func TruncateNote(note string) string {
	runes := []rune(note)
	if len(runes) <= NoteMaxLen {
		return note
	}
	return string(runes[:NoteMaxLen])
}

// Trigger describes what prompted a lifecycle event.
type Trigger struct {
	Type        TriggerType `json:"trigger_type"`
	Description string      `json:"description"`
}

// Justification references the artifacts that motivated an event.
type Justification struct {
	Summary              string   `json:"summary"`
	SnapshotIDs          []string `json:"snapshot_ids,omitempty"`
	DerivedMetricSetIDs  []string `json:"derived_metric_set_ids,omitempty"`
	AnalysisViewIDs      []string `json:"analysis_view_ids,omitempty"`
	ReasoningArtifactIDs []string `json:"reasoning_artifact_ids,omitempty"`
}

// LifecycleEvent is one append-only entry in a belief's review log.
// Events are never edited or removed. A belief's last review time is
// its most recent event, or its creation time when none exist.
type LifecycleEvent struct {
	EventID       string        `json:"event_id"`
	SchemaVersion string        `json:"schema_version"`
	OccurredAt    time.Time     `json:"occurred_at"`
	RecordedBy    Actor         `json:"recorded_by"`
	BeliefID      string        `json:"belief_id"`
	Kind          EventKind     `json:"event_kind"`

	// State transition fields (Kind == EventStateTransition).
	PreviousState BeliefState `json:"previous_state,omitempty"`
	NewState      BeliefState `json:"new_state,omitempty"`

	// Review outcome fields (Kind == EventReviewOutcome).
	Outcome ReviewOutcome `json:"outcome,omitempty"`
	Note    string        `json:"note,omitempty"`

	Trigger       Trigger       `json:"trigger"`
	Justification Justification `json:"justification"`
}

// NewReviewOutcomeEvent builds a human review-outcome event for a
// belief. The note is trimmed and bounded.
func NewReviewOutcomeEvent(eventID, beliefID string, occurredAt time.Time, outcome ReviewOutcome, note string) LifecycleEvent {
	return LifecycleEvent{
		EventID:       eventID,
		SchemaVersion: SchemaV1,
		OccurredAt:    occurredAt,
		RecordedBy:    ActorHuman,
		BeliefID:      beliefID,
		Kind:          EventReviewOutcome,
		Outcome:       outcome,
		Note:          TruncateNote(note),
		Trigger: Trigger{
			Type:        TriggerManual,
			Description: "manual_review",
		},
	}
}
