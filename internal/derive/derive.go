// Package derive computes provenance-carrying metrics from snapshot
// pairs. Computations are pure: the same snapshots always produce the
// same values and formula text.
package derive

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/conviction-cli/internal/model"
)

// ErrInsufficientInput is returned when a metric set is requested over
// fewer than two snapshots.
var ErrInsufficientInput = eris.New("at least two snapshots required")

// ComputationEngine tags every metric set with the producer version.
const ComputationEngine = "conviction.derived.v1"

// Field names a numeric snapshot field a metric can be derived from.
type Field string

const (
	FieldRevenueFY         Field = "revenue_fy"
	FieldNetProfitFY       Field = "net_profit_fy"
	FieldOperatingMarginFY Field = "operating_margin_fy"
)

// fieldAccessors maps a field name to its snapshot accessor. Unknown
// fields resolve to no value, the same as a missing input.
var fieldAccessors = map[Field]func(*model.Snapshot) *decimal.Decimal{
	FieldRevenueFY:         func(s *model.Snapshot) *decimal.Decimal { return s.Financials.RevenueFY },
	FieldNetProfitFY:       func(s *model.Snapshot) *decimal.Decimal { return s.Financials.NetProfitFY },
	FieldOperatingMarginFY: func(s *model.Snapshot) *decimal.Decimal { return s.Financials.OperatingMarginFY },
}

// PercentChange returns (new - old) / |old| for the named field, or
// nil when either value is missing, the denominator is zero, or the
// field is unknown. It never fails.
func PercentChange(older, newer *model.Snapshot, field Field) *float64 {
	accessor, ok := fieldAccessors[field]
	if !ok {
		return nil
	}
	oldVal := accessor(older)
	newVal := accessor(newer)
	if oldVal == nil || newVal == nil || oldVal.IsZero() {
		return nil
	}
	change := newVal.Sub(*oldVal).Div(oldVal.Abs()).InexactFloat64()
	return &change
}

// BuildMetric lifts one snapshot field into an absolute-value metric
// under a caller-chosen name, so multi-metric sets can be assembled
// for the view pipeline. A missing or unknown field yields a nil
// value, never an error.
func BuildMetric(name string, field Field, unit string, snap *model.Snapshot) model.DerivedMetric {
	var value *float64
	if accessor, ok := fieldAccessors[field]; ok {
		if d := accessor(snap); d != nil {
			f := d.InexactFloat64()
			value = &f
		}
	}
	fieldRef := "snapshot." + string(field)
	return model.DerivedMetric{
		Name:    name,
		Type:    model.MetricAbsolute,
		Value:   value,
		Unit:    unit,
		Formula: fieldRef,
		Inputs: []model.MetricInputRef{
			{FieldRef: fieldRef, SnapshotID: snap.Metadata.SnapshotID},
		},
		ComputedAt: time.Now().UTC(),
	}
}

// AssembleMetricSet builds a revenue year-over-year metric set from
// the two most recent snapshots by as_of. Fewer than two snapshots is
// ErrInsufficientInput. Extra metrics, typically from BuildMetric, are
// carried in the same set after the year-over-year metric.
func AssembleMetricSet(snapshots []*model.Snapshot, extra ...model.DerivedMetric) (*model.DerivedMetricSet, error) {
	if len(snapshots) < 2 {
		return nil, eris.Wrapf(ErrInsufficientInput, "got %d", len(snapshots))
	}

	ordered := make([]*model.Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return model.EnsureUTC(ordered[i].Metadata.AsOf).Before(model.EnsureUTC(ordered[j].Metadata.AsOf))
	})
	older, newer := ordered[len(ordered)-2], ordered[len(ordered)-1]

	value := PercentChange(older, newer, FieldRevenueFY)
	now := time.Now().UTC()

	metric := model.DerivedMetric{
		Name:    "revenue_fy_yoy_percent_change",
		Type:    model.MetricPercentChange,
		Value:   value,
		Unit:    "%",
		Formula: "(revenue_fy_new - revenue_fy_old) / |revenue_fy_old|",
		Inputs: []model.MetricInputRef{
			{FieldRef: "snapshot.revenue_fy", SnapshotID: older.Metadata.SnapshotID},
			{FieldRef: "snapshot.revenue_fy", SnapshotID: newer.Metadata.SnapshotID},
		},
		ComputedAt: now,
	}

	refs := make([]model.SnapshotRef, len(ordered))
	for i, s := range ordered {
		refs[i] = model.SnapshotRef{SnapshotID: s.Metadata.SnapshotID, AsOf: s.Metadata.AsOf}
	}

	return &model.DerivedMetricSet{
		DerivedSetID:      uuid.NewString(),
		SchemaVersion:     model.SchemaV1,
		CreatedAt:         now,
		ComputationEngine: ComputationEngine,
		InputSnapshots:    refs,
		Metrics:           append([]model.DerivedMetric{metric}, extra...),
	}, nil
}
