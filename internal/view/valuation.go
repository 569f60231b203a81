// Package view assembles structured analysis views from derived
// metric sets. A view is never silently zero-filled: missing required
// inputs are a hard construction failure, and any field that cannot be
// computed carries a note saying why.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/conviction-cli/internal/model"
)

// ErrMissingInput is returned when a view is requested without
// snapshots or metric sets.
var ErrMissingInput = eris.New("view requires at least one snapshot id and one metric set")

// MissingMetricsError names every required metric absent from the
// metric index.
type MissingMetricsError struct {
	ViewType string
	Missing  []string
}

func (e *MissingMetricsError) Error() string {
	return fmt.Sprintf("missing required derived metrics for %s: [%s]", e.ViewType, strings.Join(e.Missing, ", "))
}

// ViewTypeValuationMultiple identifies the valuation-multiple view.
const ViewTypeValuationMultiple = "valuation_multiple"

// requiredValuationMetrics maps output field names to the metric names
// they are sourced from, in output order.
var requiredValuationMetrics = []struct {
	fieldName  string
	metricName string
}{
	{"current_multiple", "current_valuation_multiple"},
	{"reference_multiple_min", "reference_multiple_min"},
	{"reference_multiple_max", "reference_multiple_max"},
	{"reference_multiple_median", "reference_multiple_median"},
}

// BuildValuationMultipleView assembles a valuation-multiple view from
// the given metric sets. Metrics are indexed by name across all sets,
// last write wins on collisions. Every required metric must be present
// in the index; a nil metric value is present, just unknown.
func BuildValuationMultipleView(snapshotIDs []string, metricSets []*model.DerivedMetricSet, frame model.Frame, confidence model.Confidence) (*model.AnalysisView, error) {
	if len(snapshotIDs) == 0 || len(metricSets) == 0 {
		return nil, eris.Wrap(ErrMissingInput, ViewTypeValuationMultiple)
	}

	index := make(map[string]*float64)
	setIDs := make([]string, 0, len(metricSets))
	for _, set := range metricSets {
		setIDs = append(setIDs, set.DerivedSetID)
		for _, m := range set.Metrics {
			index[m.Name] = m.Value
		}
	}

	var missing []string
	for _, req := range requiredValuationMetrics {
		if _, ok := index[req.metricName]; !ok {
			missing = append(missing, req.metricName)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingMetricsError{ViewType: ViewTypeValuationMultiple, Missing: missing}
	}

	outputs := make([]model.OutputField, 0, len(requiredValuationMetrics)+1)
	for _, req := range requiredValuationMetrics {
		outputs = append(outputs, model.OutputField{
			FieldName:      req.fieldName,
			Value:          index[req.metricName],
			Unit:           "x",
			DerivationNote: fmt.Sprintf("Derived from metric %q", req.metricName),
		})
	}

	outputs = append(outputs, positionWithinRange(index))

	return &model.AnalysisView{
		AnalysisViewID: uuid.NewString(),
		SchemaVersion:  model.SchemaV1,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      model.ActorSystem,
		ViewType:       ViewTypeValuationMultiple,
		Inputs: model.ViewInputs{
			SnapshotIDs:         snapshotIDs,
			DerivedMetricSetIDs: setIDs,
		},
		Frame:      frame,
		Outputs:    outputs,
		Confidence: confidence,
	}, nil
}

// positionWithinRange normalizes the current multiple into its
// reference range. When any input is unknown or the range is
// degenerate the value stays nil and the note explains.
func positionWithinRange(index map[string]*float64) model.OutputField {
	current := index["current_valuation_multiple"]
	minVal := index["reference_multiple_min"]
	maxVal := index["reference_multiple_max"]

	out := model.OutputField{
		FieldName:      "position_within_reference_range",
		Unit:           "%",
		DerivationNote: "Position not computed due to missing reference range or current value",
	}
	if current != nil && minVal != nil && maxVal != nil && *maxVal != *minVal {
		position := (*current - *minVal) / (*maxVal - *minVal)
		out.Value = &position
		out.DerivationNote = "Computed as (current - min) / (max - min) using reference multiples"
	}
	return out
}
