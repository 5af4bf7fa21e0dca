package taxledger

import (
	"context"
	"time"
)

// IsWashSale reports whether trading symbol at date d trips the wash-sale
// rule: (a) any open lot of the symbol acquired within +/- the wash window in
// ANY account, or (b) an unexpired watchlist entry for the symbol. The scan
// is deliberately account-agnostic; tax-advantaged accounts participate.
func (e *Engine) IsWashSale(ctx context.Context, symbol string, d time.Time) (bool, string, error) {
	if e == nil || e.Repo == nil {
		return false, "", nil
	}
	window := time.Duration(e.washWindowDays()) * 24 * time.Hour

	lots, err := e.Repo.ListLotsAcquiredBetween(ctx, symbol, d.Add(-window), d.Add(window))
	if err != nil {
		return false, "", err
	}
	for _, lot := range lots {
		if lot.Open() {
			return true, "open lot acquired inside wash window", nil
		}
	}

	entries, err := e.Repo.ListActiveWashSaleEntries(ctx, symbol, d)
	if err != nil {
		return false, "", err
	}
	if len(entries) > 0 {
		return true, "unexpired wash-sale watchlist entry", nil
	}
	return false, "", nil
}

// FlagWashSaleBuy marks the open lots of a fresh buy as wash sales when the
// buy lands inside an active watchlist window. Called after a BUY fill.
func (e *Engine) FlagWashSaleBuy(ctx context.Context, symbol string, lotIDs []uint64, at time.Time) (bool, error) {
	if e == nil || e.Repo == nil || len(lotIDs) == 0 {
		return false, nil
	}
	entries, err := e.Repo.ListActiveWashSaleEntries(ctx, symbol, at)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	return true, e.Repo.MarkLotsWashSaleTx(ctx, nil, lotIDs)
}
