package model

import "time"

// ProposalType names the rule that generated a proposal.
type ProposalType string

const (
	// ProposalReviewPrompt fires when a belief is stale relative to
	// newer snapshots of the tickers it references.
	ProposalReviewPrompt ProposalType = "review_prompt"
	// ProposalMissingGrounding fires when a belief has zero snapshot
	// references.
	ProposalMissingGrounding ProposalType = "missing_grounding"
)

// ProposalStatus is the proposal state machine's current state.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
)

// proposalTransitions is the explicit finite-state table. Status moves
// one direction only: pending resolves to accepted/rejected/expired,
// and resolved proposals can still expire when their condition clears.
// Expired is terminal.
var proposalTransitions = map[ProposalStatus]map[ProposalStatus]bool{
	ProposalPending: {
		ProposalAccepted: true,
		ProposalRejected: true,
		ProposalExpired:  true,
	},
	ProposalAccepted: {ProposalExpired: true},
	ProposalRejected: {ProposalExpired: true},
	ProposalExpired:  {},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to ProposalStatus) bool {
	return proposalTransitions[from][to]
}

// NonExpiredStatuses are the statuses that occupy a (belief, type)
// slot: while one exists, no duplicate proposal is generated.
var NonExpiredStatuses = []ProposalStatus{ProposalPending, ProposalAccepted, ProposalRejected}

// Condition snapshots why a proposal triggered, for audit.
type Condition struct {
	Type        string    `json:"type"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// ProposalPayload carries the belief the proposal is about and the
// evidence behind the trigger.
type ProposalPayload struct {
	BeliefID           string    `json:"belief_id"`
	BeliefText         string    `json:"belief_text"`
	NewerSnapshotIDs   []string  `json:"newer_snapshot_ids,omitempty"`
	AgeDaysSinceReview int       `json:"age_days_since_review,omitempty"`
	Condition          Condition `json:"condition_state"`
}

// Proposal is a system-generated, human-actionable suggestion tied to
// exactly one belief and one rule. Proposals are never deleted.
type Proposal struct {
	ProposalID string          `json:"proposal_id"`
	Type       ProposalType    `json:"proposal_type"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     ProposalStatus  `json:"status"`
	Payload    ProposalPayload `json:"payload"`
}
