// Package store persists the three append-mostly collections behind
// the ledger: artifacts (immutable, type-tagged), lifecycle events
// (append-only), and proposals (status-mutable, never deleted).
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/conviction-cli/internal/model"
)

// ErrImmutableViolation is returned when saving an artifact whose id
// already exists. Artifacts are never updated or merged.
var ErrImmutableViolation = eris.New("artifacts are immutable: id already exists")

// ErrUnknownArtifactType is returned when a stored type tag is not one
// of the closed artifact kinds.
var ErrUnknownArtifactType = eris.New("unknown artifact type tag")

// ErrNotFound is returned by operations whose contract requires the
// entity to exist.
var ErrNotFound = eris.New("not found")

// ProposalFilter selects proposals by type and/or status set.
type ProposalFilter struct {
	Type     model.ProposalType
	Statuses []model.ProposalStatus
}

// Store is the persistence interface for the ledger. Implementations
// serialize individual operations; no multi-row transactions are
// needed because the proposal engine never writes artifacts or events.
type Store interface {
	// Artifacts. SaveArtifact fails with ErrImmutableViolation when the
	// id exists. GetArtifact returns (nil, nil) on a miss and
	// ErrUnknownArtifactType when the stored tag is unrecognized.
	// ListByKind makes no ordering promise; ordering is a caller
	// concern.
	SaveArtifact(ctx context.Context, a model.Artifact) error
	GetArtifact(ctx context.Context, id string) (model.Artifact, error)
	ListByKind(ctx context.Context, kind model.ArtifactKind) ([]model.Artifact, error)

	// Lifecycle log. AppendEvent always succeeds barring storage
	// failure; ListForBelief returns events ascending by occurred_at.
	AppendEvent(ctx context.Context, ev model.LifecycleEvent) error
	ListForBelief(ctx context.Context, beliefID string) ([]model.LifecycleEvent, error)

	// Proposals. UpdateProposalStatus consults the transition table:
	// a disallowed transition is a silent no-op, an unknown id is
	// ErrNotFound. ListProposals returns newest-first.
	CreateProposal(ctx context.Context, p model.Proposal) error
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]model.Proposal, error)
	UpdateProposalStatus(ctx context.Context, id string, status model.ProposalStatus) error
	ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Lifecycle. ResetAll is the out-of-band administrative bulk-clear
	// used only by data-reset tooling.
	Migrate(ctx context.Context) error
	ResetAll(ctx context.Context) error
	Close() error
}

// rehydrate decodes a payload by its type tag into the closed artifact
// union. Both backends share it.
func rehydrate(tag string, payload []byte) (model.Artifact, error) {
	switch model.ArtifactKind(tag) {
	case model.KindSnapshot:
		var s model.Snapshot
		if err := unmarshalPayload(payload, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case model.KindReasoning:
		var r model.ReasoningArtifact
		if err := unmarshalPayload(payload, &r); err != nil {
			return nil, err
		}
		return &r, nil
	default:
		return nil, eris.Wrapf(ErrUnknownArtifactType, "tag %q", tag)
	}
}
