package taxledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// ledgerStub is an in-memory lot store for engine tests. Only the methods
// the ledger engine touches are implemented; everything else panics via the
// embedded nil interface.
type ledgerStub struct {
	repository.Repository

	nextID      uint64
	lots        map[uint64]*models.TaxLot
	washEntries []models.WashSaleEntry
	accounts    []models.Account
	positions   []models.Position
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{lots: map[uint64]*models.TaxLot{}}
}

func (s *ledgerStub) addLot(lot models.TaxLot) uint64 {
	s.nextID++
	lot.ID = s.nextID
	if lot.CostBasis.IsZero() {
		lot.CostBasis = lot.CostPerShare.Mul(lot.Shares)
	}
	s.lots[lot.ID] = &lot
	return lot.ID
}

func (s *ledgerStub) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *ledgerStub) InsertTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error {
	s.nextID++
	item.ID = s.nextID
	copied := *item
	s.lots[item.ID] = &copied
	return nil
}

func (s *ledgerStub) SaveTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error {
	if _, ok := s.lots[item.ID]; !ok {
		return fmt.Errorf("lot %d not found", item.ID)
	}
	copied := *item
	s.lots[item.ID] = &copied
	return nil
}

func (s *ledgerStub) GetTaxLotByID(ctx context.Context, id uint64) (*models.TaxLot, error) {
	lot, ok := s.lots[id]
	if !ok {
		return nil, nil
	}
	copied := *lot
	return &copied, nil
}

func (s *ledgerStub) ListOpenLotsTx(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error) {
	return s.ListOpenLots(ctx, accountID, symbol, asc)
}

func (s *ledgerStub) ListOpenLots(ctx context.Context, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error) {
	var out []models.TaxLot
	for _, lot := range s.lots {
		if lot.AccountID == accountID && lot.Symbol == symbol && lot.Open() {
			out = append(out, *lot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].AcquiredAt.Before(out[j].AcquiredAt)
		}
		return out[i].AcquiredAt.After(out[j].AcquiredAt)
	})
	return out, nil
}

func (s *ledgerStub) ListOpenLotsBySymbol(ctx context.Context, symbol string) ([]models.TaxLot, error) {
	var out []models.TaxLot
	for _, lot := range s.lots {
		if lot.Symbol == symbol && lot.Open() {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (s *ledgerStub) ListOpenLotsByAccount(ctx context.Context, accountID uint64) ([]models.TaxLot, error) {
	var out []models.TaxLot
	for _, lot := range s.lots {
		if lot.AccountID == accountID && lot.Open() {
			out = append(out, *lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ledgerStub) ListLotsAcquiredBetween(ctx context.Context, symbol string, from, to time.Time) ([]models.TaxLot, error) {
	var out []models.TaxLot
	for _, lot := range s.lots {
		if lot.Symbol == symbol && !lot.AcquiredAt.Before(from) && !lot.AcquiredAt.After(to) {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (s *ledgerStub) MarkLotsWashSaleTx(ctx context.Context, tx *gorm.DB, ids []uint64) error {
	for _, id := range ids {
		if lot, ok := s.lots[id]; ok {
			lot.WashSale = true
		}
	}
	return nil
}

func (s *ledgerStub) InsertWashSaleEntryTx(ctx context.Context, tx *gorm.DB, item *models.WashSaleEntry) error {
	s.washEntries = append(s.washEntries, *item)
	return nil
}

func (s *ledgerStub) ListActiveWashSaleEntries(ctx context.Context, symbol string, at time.Time) ([]models.WashSaleEntry, error) {
	var out []models.WashSaleEntry
	for _, entry := range s.washEntries {
		if entry.Symbol == symbol && at.Before(entry.ExpiresAt) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *ledgerStub) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.accounts, nil
}

func (s *ledgerStub) ListPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

// totals sums open and sold shares and cost basis across every lot of a
// symbol/account, for conservation assertions.
func (s *ledgerStub) totals(accountID uint64, symbol string) (openShares, soldShares, basis decimal.Decimal) {
	openShares, soldShares, basis = decimal.Zero, decimal.Zero, decimal.Zero
	for _, lot := range s.lots {
		if lot.AccountID != accountID || lot.Symbol != symbol {
			continue
		}
		openShares = openShares.Add(lot.Shares)
		soldShares = soldShares.Add(lot.SoldShares)
		basis = basis.Add(lot.CostBasis)
	}
	return openShares, soldShares, basis
}

// stubQuotes serves fixed prices; missing symbols error to exercise the
// cost-basis fallback.
type stubQuotes struct {
	prices map[string]decimal.Decimal
}

func (q *stubQuotes) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &marketdata.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (q *stubQuotes) GetHistory(ctx context.Context, symbol string, days int) ([]marketdata.Bar, error) {
	return nil, nil
}

func (q *stubQuotes) GetFundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error) {
	return &marketdata.Fundamentals{Symbol: symbol}, nil
}
