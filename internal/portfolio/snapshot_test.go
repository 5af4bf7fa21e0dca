package portfolio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

type snapStub struct {
	repository.Repository

	accounts  []models.Account
	positions []models.Position
	realized  decimal.Decimal
	saved     []models.PortfolioSnapshot
}

func (s *snapStub) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.accounts, nil
}

func (s *snapStub) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.positions, nil
}

func (s *snapStub) SumRealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return s.realized, nil
}

func (s *snapStub) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	item.ID = uint64(len(s.saved) + 1)
	s.saved = append(s.saved, *item)
	return nil
}

type snapQuotes struct {
	prices map[string]decimal.Decimal
}

func (q *snapQuotes) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &marketdata.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (q *snapQuotes) GetHistory(ctx context.Context, symbol string, days int) ([]marketdata.Bar, error) {
	return nil, nil
}

func (q *snapQuotes) GetFundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error) {
	return &marketdata.Fundamentals{Symbol: symbol}, nil
}

func TestTakeSnapshot(t *testing.T) {
	stub := &snapStub{
		accounts: []models.Account{
			{ID: 1, Cash: decimal.NewFromInt(30_000)},
			{ID: 2, Cash: decimal.NewFromInt(20_000)},
		},
		positions: []models.Position{
			{AccountID: 1, Symbol: "AAPL", Side: models.SideLong, Shares: decimal.NewFromInt(100), AvgCost: decimal.NewFromInt(100)},
			{AccountID: 2, Symbol: "TSLA", Side: models.SideShort, Shares: decimal.NewFromInt(50), AvgCost: decimal.NewFromInt(200)},
		},
		realized: decimal.NewFromInt(750),
	}
	quotes := &snapQuotes{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(120),
		"TSLA": decimal.NewFromInt(180),
	}}
	snapper := &Snapshotter{Repo: stub, Quotes: quotes}

	snap, err := snapper.Take(context.Background())
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if len(stub.saved) != 1 {
		t.Fatalf("want one saved snapshot, got %d", len(stub.saved))
	}

	if !snap.Cash.Equal(decimal.NewFromInt(50_000)) {
		t.Fatalf("cash = %s, want 50000", snap.Cash)
	}
	if !snap.LongValue.Equal(decimal.NewFromInt(12_000)) {
		t.Fatalf("long value = %s, want 12000", snap.LongValue)
	}
	if !snap.ShortValue.Equal(decimal.NewFromInt(9_000)) {
		t.Fatalf("short value = %s, want 9000", snap.ShortValue)
	}
	// 50000 + 12000 - 9000
	if !snap.NAV.Equal(decimal.NewFromInt(53_000)) {
		t.Fatalf("nav = %s, want 53000", snap.NAV)
	}
	// Long: 12000 - 10000 = +2000. Short: 10000 - 9000 = +1000.
	if !snap.UnrealizedPnL.Equal(decimal.NewFromInt(3_000)) {
		t.Fatalf("unrealized = %s, want 3000", snap.UnrealizedPnL)
	}
	if !snap.RealizedPnL.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("realized = %s, want 750", snap.RealizedPnL)
	}
}

func TestTakeSnapshotQuoteFallback(t *testing.T) {
	stub := &snapStub{
		accounts: []models.Account{{ID: 1, Cash: decimal.NewFromInt(10_000)}},
		positions: []models.Position{
			{AccountID: 1, Symbol: "UNQUOTED", Side: models.SideLong, Shares: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(100)},
		},
	}
	snapper := &Snapshotter{Repo: stub, Quotes: &snapQuotes{prices: map[string]decimal.Decimal{}}}

	snap, err := snapper.Take(context.Background())
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	// No quote values the position at cost: no phantom unrealized P&L.
	if !snap.LongValue.Equal(decimal.NewFromInt(1_000)) {
		t.Fatalf("long value = %s, want cost 1000", snap.LongValue)
	}
	if !snap.UnrealizedPnL.IsZero() {
		t.Fatalf("unrealized = %s, want 0 on cost fallback", snap.UnrealizedPnL)
	}
	if !snap.NAV.Equal(decimal.NewFromInt(11_000)) {
		t.Fatalf("nav = %s, want 11000", snap.NAV)
	}
}
