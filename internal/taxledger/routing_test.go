package taxledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/config"
	"tradedesk/internal/models"
)

func routingStub() *ledgerStub {
	stub := newLedgerStub()
	stub.accounts = []models.Account{
		{ID: 1, Type: models.AccountTaxFree, Cash: decimal.NewFromInt(20_000)},
		{ID: 2, Type: models.AccountTaxDeferred, Cash: decimal.NewFromInt(50_000)},
		{ID: 3, Type: models.AccountTaxable, Cash: decimal.NewFromInt(100_000)},
	}
	return stub
}

func TestRoutePriorityOrder(t *testing.T) {
	stub := routingStub()
	engine := newEngine(stub)
	engine.Config = config.TaxConfig{ShortHorizonMo: 6}

	sig := models.Signal{Action: models.ActionBuy, Symbol: "AAPL"}

	// Fits everywhere: tax-free wins.
	id, err := engine.RecommendAccount(context.Background(), sig, 24, decimal.NewFromInt(10_000))
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 1 {
		t.Fatalf("routed to %d, want tax-free 1", id)
	}

	// Too big for tax-free: falls to tax-deferred.
	id, err = engine.RecommendAccount(context.Background(), sig, 24, decimal.NewFromInt(30_000))
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 2 {
		t.Fatalf("routed to %d, want tax-deferred 2", id)
	}

	// Only taxable can cover it.
	id, err = engine.RecommendAccount(context.Background(), sig, 24, decimal.NewFromInt(80_000))
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 3 {
		t.Fatalf("routed to %d, want taxable 3", id)
	}

	// Nothing can.
	_, err = engine.RecommendAccount(context.Background(), sig, 24, decimal.NewFromInt(500_000))
	if !errors.Is(err, ErrNoAccount) {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}

func TestRouteShortHorizonPrefersTaxFree(t *testing.T) {
	stub := routingStub()
	engine := newEngine(stub)

	sig := models.Signal{Action: models.ActionBuy, Symbol: "AAPL"}
	id, err := engine.RecommendAccount(context.Background(), sig, 3, decimal.NewFromInt(5_000))
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 1 {
		t.Fatalf("short horizon routed to %d, want tax-free 1", id)
	}
}

func TestRouteSellHarvestsTaxableLoss(t *testing.T) {
	stub := routingStub()
	// Taxable account holds SPY under water.
	stub.addLot(models.TaxLot{
		AccountID: 3, Symbol: "SPY",
		Shares:       decimal.NewFromInt(10),
		CostPerShare: decimal.NewFromInt(500),
		AcquiredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	stub.positions = []models.Position{{AccountID: 3, Symbol: "SPY", Shares: decimal.NewFromInt(10)}}

	engine := newEngine(stub)
	engine.Quotes = &stubQuotes{prices: map[string]decimal.Decimal{"SPY": decimal.NewFromInt(450)}}

	sig := models.Signal{Action: models.ActionSell, Symbol: "SPY"}
	id, err := engine.RecommendAccount(context.Background(), sig, 12, decimal.Zero)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 3 {
		t.Fatalf("loss sale routed to %d, want taxable 3", id)
	}
}

func TestRouteSellFollowsHolding(t *testing.T) {
	stub := routingStub()
	// Only the tax-deferred account holds the symbol, and it is gaining.
	stub.addLot(models.TaxLot{
		AccountID: 2, Symbol: "MSFT",
		Shares:       decimal.NewFromInt(10),
		CostPerShare: decimal.NewFromInt(300),
		AcquiredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	stub.positions = []models.Position{{AccountID: 2, Symbol: "MSFT", Shares: decimal.NewFromInt(10)}}

	engine := newEngine(stub)
	engine.Quotes = &stubQuotes{prices: map[string]decimal.Decimal{"MSFT": decimal.NewFromInt(400)}}

	sig := models.Signal{Action: models.ActionSell, Symbol: "MSFT"}
	id, err := engine.RecommendAccount(context.Background(), sig, 12, decimal.Zero)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if id != 2 {
		t.Fatalf("sell routed to %d, want holding account 2", id)
	}
}
