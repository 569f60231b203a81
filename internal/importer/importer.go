// Package importer ingests snapshot records from JSON files. It
// produces snapshots only: no beliefs, no proposals, no lifecycle
// events. Snapshot ids are derived deterministically from ticker and
// as_of, so re-running an import skips everything already stored.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/store"
)

// snapshotNamespace seeds deterministic snapshot ids.
var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("conviction-cli/snapshot"))

// DefaultConcurrency bounds parallel store writes.
const DefaultConcurrency = 4

// Record is one snapshot row in an import file.
type Record struct {
	Ticker   string    `json:"ticker"`
	Exchange string    `json:"exchange,omitempty"`
	Name     string    `json:"company_name,omitempty"`
	Sector   string    `json:"sector,omitempty"`
	Industry string    `json:"industry,omitempty"`
	Country  string    `json:"country,omitempty"`
	AsOf     time.Time `json:"as_of"`

	Currency          string           `json:"currency,omitempty"`
	CurrentPrice      *decimal.Decimal `json:"current_price,omitempty"`
	MarketCap         *decimal.Decimal `json:"market_cap,omitempty"`
	SharesOutstanding *decimal.Decimal `json:"shares_outstanding,omitempty"`

	RevenueFY          *decimal.Decimal   `json:"revenue_fy,omitempty"`
	NetProfitFY        *decimal.Decimal   `json:"net_profit_fy,omitempty"`
	OperatingMarginFY  *decimal.Decimal   `json:"operating_margin_fy,omitempty"`
	QuarterlyRevenue   []*decimal.Decimal `json:"quarterly_revenue,omitempty"`
	QuarterlyNetProfit []*decimal.Decimal `json:"quarterly_net_profit,omitempty"`

	TotalAssets        *decimal.Decimal `json:"total_assets,omitempty"`
	TotalLiabilities   *decimal.Decimal `json:"total_liabilities,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	CashAndEquivalents *decimal.Decimal `json:"cash_and_equivalents,omitempty"`

	DataSources []string `json:"data_sources,omitempty"`
	Notes       string   `json:"user_notes,omitempty"`
}

// Summary tallies one import run.
type Summary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Importer writes snapshot records into a Store.
type Importer struct {
	store       store.Store
	concurrency int
}

// New creates an Importer. Non-positive concurrency falls back to
// DefaultConcurrency.
func New(st store.Store, concurrency int) *Importer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Importer{store: st, concurrency: concurrency}
}

// SnapshotID derives the deterministic id for a ticker and as_of date.
func SnapshotID(ticker string, asOf time.Time) string {
	key := fmt.Sprintf("%s_%s", ticker, asOf.UTC().Format("2006-01-02"))
	return uuid.NewSHA1(snapshotNamespace, []byte(key)).String()
}

// ImportFile reads a JSON array of records from path and imports them.
func (i *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read %s", path)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "importer: parse %s", path)
	}
	return i.Import(ctx, records)
}

// Import converts records to snapshots and saves them concurrently.
// Records whose id already exists are skipped, not errors; anything
// else aborts the run.
func (i *Importer) Import(ctx context.Context, records []Record) (*Summary, error) {
	var imported, skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, rec := range records {
		g.Go(func() error {
			snap, err := toSnapshot(rec)
			if err != nil {
				return err
			}
			err = i.store.SaveArtifact(ctx, snap)
			if errors.Is(err, store.ErrImmutableViolation) {
				skipped.Add(1)
				zap.L().Debug("snapshot already present",
					zap.String("snapshot_id", snap.Metadata.SnapshotID),
					zap.String("ticker", rec.Ticker))
				return nil
			}
			if err != nil {
				return err
			}
			imported.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{Imported: int(imported.Load()), Skipped: int(skipped.Load())}
	zap.L().Info("import complete",
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func toSnapshot(rec Record) (*model.Snapshot, error) {
	if rec.Ticker == "" {
		return nil, eris.New("importer: record missing ticker")
	}
	if rec.AsOf.IsZero() {
		return nil, eris.Wrapf(eris.New("importer: record missing as_of"), "ticker %s", rec.Ticker)
	}
	return model.NewSnapshot(
		model.SnapshotMetadata{
			SnapshotID:  SnapshotID(rec.Ticker, rec.AsOf),
			AsOf:        rec.AsOf,
			DataSources: rec.DataSources,
		},
		model.CompanyIdentity{
			Ticker:   rec.Ticker,
			Exchange: rec.Exchange,
			Name:     rec.Name,
			Sector:   rec.Sector,
			Industry: rec.Industry,
			Country:  rec.Country,
		},
		model.MarketState{
			CurrentPrice:      rec.CurrentPrice,
			Currency:          rec.Currency,
			MarketCap:         rec.MarketCap,
			SharesOutstanding: rec.SharesOutstanding,
		},
		model.FinancialSummary{
			RevenueFY:          rec.RevenueFY,
			NetProfitFY:        rec.NetProfitFY,
			OperatingMarginFY:  rec.OperatingMarginFY,
			QuarterlyRevenue:   rec.QuarterlyRevenue,
			QuarterlyNetProfit: rec.QuarterlyNetProfit,
		},
		model.BalanceSheetSignals{
			TotalAssets:        rec.TotalAssets,
			TotalLiabilities:   rec.TotalLiabilities,
			TotalDebt:          rec.TotalDebt,
			CashAndEquivalents: rec.CashAndEquivalents,
		},
		rec.Notes,
	)
}
