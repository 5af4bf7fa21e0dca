package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

var ErrInsufficientCash = fmt.Errorf("lifecycle: insufficient cash and no lot to liquidate")

// FundingPlan says how to cover a BUY whose estimated cost exceeds available
// cash. The fallback is deliberately blunt: liquidate the single oldest open
// lot from any other symbol, FIFO, ignoring tax consequences. Tax-aware
// sourcing is the ledger's RecommendAccount, a separate policy.
type FundingPlan struct {
	NeedsFunding bool
	Shortfall    decimal.Decimal
	SellLot      *models.TaxLot
}

// BuildFundingPlan checks the account's cash against the estimated cost and,
// on a shortfall, picks the oldest open lot outside the signal's own symbol.
func (e *Engine) BuildFundingPlan(ctx context.Context, accountID uint64, symbol string, estimatedCost decimal.Decimal) (*FundingPlan, error) {
	account, err := e.Repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("lifecycle: account %d not found", accountID)
	}
	if account.Cash.GreaterThanOrEqual(estimatedCost) {
		return &FundingPlan{NeedsFunding: false, Shortfall: decimal.Zero}, nil
	}

	shortfall := estimatedCost.Sub(account.Cash)
	lot, err := e.Repo.OldestOpenLotExcluding(ctx, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientCash, shortfall.String())
	}
	return &FundingPlan{
		NeedsFunding: true,
		Shortfall:    shortfall,
		SellLot:      lot,
	}, nil
}
