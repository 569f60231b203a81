package model

import "time"

// MetricType classifies how a derived metric was computed.
type MetricType string

const (
	MetricRatio         MetricType = "ratio"
	MetricDelta         MetricType = "delta"
	MetricPercentChange MetricType = "percent_change"
	MetricAbsolute      MetricType = "absolute"
)

// MetricInputRef names the exact snapshot field a metric was computed
// from.
type MetricInputRef struct {
	FieldRef   string `json:"field_ref"`
	SnapshotID string `json:"snapshot_id"`
}

// DerivedMetric is one provenance-carrying computed value. Value is
// nil when an input was missing or the computation was undefined.
type DerivedMetric struct {
	Name       string           `json:"metric_name"`
	Type       MetricType       `json:"metric_type"`
	Value      *float64         `json:"value"`
	Unit       string           `json:"unit,omitempty"`
	Formula    string           `json:"formula"`
	Inputs     []MetricInputRef `json:"inputs"`
	ComputedAt time.Time        `json:"computed_at"`
}

// SnapshotRef records an input snapshot's identity and instant.
type SnapshotRef struct {
	SnapshotID string    `json:"snapshot_id"`
	AsOf       time.Time `json:"as_of"`
}

// DerivedMetricSet is a deterministic computation over at least two
// snapshots. The same input snapshot set always yields identical
// metric values and formula text; only CreatedAt and the metrics'
// ComputedAt stamps vary between runs.
type DerivedMetricSet struct {
	DerivedSetID      string          `json:"derived_set_id"`
	SchemaVersion     string          `json:"schema_version"`
	CreatedAt         time.Time       `json:"created_at"`
	ComputationEngine string          `json:"computation_engine"`
	InputSnapshots    []SnapshotRef   `json:"input_snapshots"`
	Metrics           []DerivedMetric `json:"metrics"`
}
