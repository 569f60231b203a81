// Package model defines the immutable artifact types tracked by the
// conviction ledger: company snapshots, reasoning artifacts (theses,
// risks, questions), lifecycle events, derived metrics, analysis views,
// and system-generated proposals.
package model

import "time"

// ArtifactKind tags the two persisted artifact shapes. The set is
// closed: every switch over ArtifactKind handles both cases.
type ArtifactKind string

const (
	KindSnapshot  ArtifactKind = "snapshot"
	KindReasoning ArtifactKind = "reasoning_artifact"
)

// SchemaV1 is the only schema version in circulation.
const SchemaV1 = "v1"

// Artifact is the closed union of persistable artifact types.
// Implemented by *Snapshot and *ReasoningArtifact only; the sealed
// method keeps the union closed.
type Artifact interface {
	ArtifactID() string
	Kind() ArtifactKind
	SchemaVersion() string
	CreatedStamp() time.Time

	sealed()
}

// EnsureUTC normalizes a timestamp for comparison. Timestamps that
// arrive without an explicit offset are treated as UTC by convention;
// everything else is converted. All comparison logic in the analysis
// services goes through this single choke point.
func EnsureUTC(t time.Time) time.Time {
	return t.UTC()
}

// referenceZoneName is the zone snapshot as_of values are normalized
// to on construction. Matches the upstream data feed's convention.
const referenceZoneName = "Asia/Kolkata"

var referenceZone = mustLoadZone(referenceZoneName)

func mustLoadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fall back to UTC when the zone database is unavailable;
		// comparisons are instant-based so correctness is unaffected.
		return time.UTC
	}
	return loc
}

// InReferenceZone renders a timestamp in the reference zone used for
// snapshot as_of display.
func InReferenceZone(t time.Time) time.Time {
	return t.In(referenceZone)
}
