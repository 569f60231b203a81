package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// SnapshotMetadata identifies a snapshot and the instant it describes.
type SnapshotMetadata struct {
	SnapshotID    string    `json:"snapshot_id"`
	AsOf          time.Time `json:"as_of"`
	SchemaVersion string    `json:"schema_version"`
	DataSources   []string  `json:"data_sources,omitempty"`
}

// CompanyIdentity holds the company identity fields observed at
// snapshot time. Every field is optional: a snapshot records what the
// source reported, nothing more.
type CompanyIdentity struct {
	Ticker   string `json:"ticker,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Name     string `json:"company_name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
	Country  string `json:"country,omitempty"`
}

// MarketState captures observed market data.
type MarketState struct {
	CurrentPrice      *decimal.Decimal `json:"current_price,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	MarketCap         *decimal.Decimal `json:"market_cap,omitempty"`
	SharesOutstanding *decimal.Decimal `json:"shares_outstanding,omitempty"`
	FiftyTwoWeekHigh  *decimal.Decimal `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow   *decimal.Decimal `json:"fifty_two_week_low,omitempty"`
}

// FinancialSummary holds last-FY figures and recent quarterly series
// (oldest to newest). Each field is independently nullable.
type FinancialSummary struct {
	RevenueFY          *decimal.Decimal   `json:"revenue_fy,omitempty"`
	NetProfitFY        *decimal.Decimal   `json:"net_profit_fy,omitempty"`
	OperatingMarginFY  *decimal.Decimal   `json:"operating_margin_fy,omitempty"`
	QuarterlyRevenue   []*decimal.Decimal `json:"quarterly_revenue,omitempty"`
	QuarterlyNetProfit []*decimal.Decimal `json:"quarterly_net_profit,omitempty"`
}

// BalanceSheetSignals holds headline balance-sheet figures.
type BalanceSheetSignals struct {
	TotalAssets        *decimal.Decimal `json:"total_assets,omitempty"`
	TotalLiabilities   *decimal.Decimal `json:"total_liabilities,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	CashAndEquivalents *decimal.Decimal `json:"cash_and_equivalents,omitempty"`
}

// Snapshot is an immutable, factual, time-bound record of one company
// at one instant. Once persisted no field changes; a correction is a
// new snapshot with a new identity.
type Snapshot struct {
	Metadata     SnapshotMetadata    `json:"metadata"`
	Company      CompanyIdentity     `json:"company"`
	MarketState  MarketState         `json:"market_state"`
	Financials   FinancialSummary    `json:"financials"`
	BalanceSheet BalanceSheetSignals `json:"balance_sheet"`
	Notes        string              `json:"user_notes,omitempty"`
}

// NewSnapshot validates and constructs a Snapshot. The as_of instant
// is normalized to the reference zone; the zero time is rejected.
func NewSnapshot(meta SnapshotMetadata, company CompanyIdentity, market MarketState, fin FinancialSummary, bs BalanceSheetSignals, notes string) (*Snapshot, error) {
	if meta.SnapshotID == "" {
		return nil, eris.New("snapshot: snapshot_id is required")
	}
	if meta.AsOf.IsZero() {
		return nil, eris.New("snapshot: as_of is required")
	}
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = SchemaV1
	}
	meta.AsOf = InReferenceZone(meta.AsOf)
	return &Snapshot{
		Metadata:     meta,
		Company:      company,
		MarketState:  market,
		Financials:   fin,
		BalanceSheet: bs,
		Notes:        notes,
	}, nil
}

func (s *Snapshot) ArtifactID() string     { return s.Metadata.SnapshotID }
func (s *Snapshot) Kind() ArtifactKind     { return KindSnapshot }
func (s *Snapshot) SchemaVersion() string  { return s.Metadata.SchemaVersion }
func (s *Snapshot) CreatedStamp() time.Time { return s.Metadata.AsOf }
func (s *Snapshot) sealed()                {}
