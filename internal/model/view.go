package model

import "time"

// ViewInputs names everything an analysis view was built from. A view
// must reference at least one snapshot.
type ViewInputs struct {
	SnapshotIDs         []string `json:"snapshot_ids"`
	DerivedMetricSetIDs []string `json:"derived_metric_set_ids"`
}

// Frame states the view's intent and the boundaries of its
// applicability. Kept explicit so the output is auditable.
type Frame struct {
	Intent              string   `json:"intent"`
	Assumptions         []string `json:"assumptions"`
	Exclusions          []string `json:"exclusions"`
	ApplicabilityLimits []string `json:"applicability_limits"`
}

// OutputField is one named output with its unit and a note on how it
// was derived. Value is nil when the field could not be computed; the
// note says why.
type OutputField struct {
	FieldName      string   `json:"field_name"`
	Value          *float64 `json:"value"`
	Unit           string   `json:"unit,omitempty"`
	DerivationNote string   `json:"derivation_note"`
}

// AnalysisView is a structured, human-auditable analysis output. It
// must produce at least one output field.
type AnalysisView struct {
	AnalysisViewID string        `json:"analysis_view_id"`
	SchemaVersion  string        `json:"schema_version"`
	CreatedAt      time.Time     `json:"created_at"`
	CreatedBy      Actor         `json:"created_by"`
	ViewType       string        `json:"view_type"`
	Inputs         ViewInputs    `json:"inputs"`
	Frame          Frame         `json:"frame"`
	Outputs        []OutputField `json:"outputs"`
	Confidence     Confidence    `json:"confidence"`
}
