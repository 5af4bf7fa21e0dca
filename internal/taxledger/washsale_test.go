package taxledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

// Wash-sale symmetry: a loss-sale in the taxable account flags a repurchase
// in the tax-advantaged account within 30 days, and the scan answers the same
// whichever account drove the query.
func TestWashSaleCrossAccount(t *testing.T) {
	stub := newLedgerStub()
	engine := newEngine(stub)
	ctx := context.Background()

	stub.addLot(models.TaxLot{
		AccountID: 1, Symbol: "SPY",
		Shares:       decimal.NewFromInt(10),
		CostPerShare: decimal.NewFromInt(500),
		AcquiredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	soldAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := engine.ConsumeLots(ctx, nil, 1, "SPY",
		decimal.NewFromInt(10), decimal.NewFromInt(450), soldAt, FIFO); err != nil {
		t.Fatalf("loss sale: %v", err)
	}

	// Repurchase in account 2 (tax-advantaged) ten days later.
	buyAt := soldAt.Add(10 * 24 * time.Hour)
	isWash, reason, err := engine.IsWashSale(ctx, "SPY", buyAt)
	if err != nil {
		t.Fatalf("wash check: %v", err)
	}
	if !isWash {
		t.Fatalf("repurchase 10 days after a loss sale must be a wash sale")
	}
	if reason == "" {
		t.Fatalf("wash sale must carry a reason")
	}

	// The new lot gets flagged on fill, whichever account holds it.
	lotID := stub.addLot(models.TaxLot{
		AccountID: 2, Symbol: "SPY",
		Shares:       decimal.NewFromInt(10),
		CostPerShare: decimal.NewFromInt(460),
		AcquiredAt:   buyAt,
	})
	flagged, err := engine.FlagWashSaleBuy(ctx, "SPY", []uint64{lotID}, buyAt)
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if !flagged {
		t.Fatalf("buy inside the watchlist window must be flagged")
	}
	lot, _ := stub.GetTaxLotByID(ctx, lotID)
	if !lot.WashSale {
		t.Fatalf("lot must carry the wash-sale flag")
	}
}

func TestWashSaleOpenLotInWindow(t *testing.T) {
	stub := newLedgerStub()
	engine := newEngine(stub)
	ctx := context.Background()

	// An open lot acquired inside [D-30, D+30] in ANY account trips the rule
	// even without a watchlist entry.
	stub.addLot(models.TaxLot{
		AccountID: 3, Symbol: "QQQ",
		Shares:       decimal.NewFromInt(5),
		CostPerShare: decimal.NewFromInt(400),
		AcquiredAt:   time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})

	isWash, _, err := engine.IsWashSale(ctx, "QQQ", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("wash check: %v", err)
	}
	if !isWash {
		t.Fatalf("open lot acquired 16 days prior must trip the rule")
	}
}

func TestNoWashSaleOutsideWindow(t *testing.T) {
	stub := newLedgerStub()
	engine := newEngine(stub)
	ctx := context.Background()

	stub.addLot(models.TaxLot{
		AccountID: 1, Symbol: "QQQ",
		Shares:       decimal.NewFromInt(5),
		CostPerShare: decimal.NewFromInt(400),
		AcquiredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	isWash, _, err := engine.IsWashSale(ctx, "QQQ", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("wash check: %v", err)
	}
	if isWash {
		t.Fatalf("acquisition 5 months back must not trip the rule")
	}
}

func TestWatchlistEntryExpires(t *testing.T) {
	stub := newLedgerStub()
	engine := newEngine(stub)
	ctx := context.Background()

	soldAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	stub.washEntries = append(stub.washEntries, models.WashSaleEntry{
		Symbol: "IWM", AccountID: 1,
		LossAmount: decimal.NewFromInt(300),
		SoldAt:     soldAt,
		ExpiresAt:  soldAt.Add(30 * 24 * time.Hour),
	})

	isWash, _, err := engine.IsWashSale(ctx, "IWM", soldAt.Add(45*24*time.Hour))
	if err != nil {
		t.Fatalf("wash check: %v", err)
	}
	if isWash {
		t.Fatalf("expired watchlist entry must not trip the rule")
	}
}
