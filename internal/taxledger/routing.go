package taxledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

var ErrNoAccount = fmt.Errorf("taxledger: no account can take the trade")

// accountPriority is the fixed routing preference for new positions.
var accountPriority = []string{
	models.AccountTaxFree,
	models.AccountTaxDeferred,
	models.AccountTaxable,
}

// RecommendAccount picks the account a signal should route to.
//
// A SELL with unrealized losses in the taxable account routes there to
// harvest the loss. A short-horizon thesis prefers the tax-free account.
// Otherwise the fixed priority order applies, each account conditioned on
// sufficient cash for the estimated cost.
func (e *Engine) RecommendAccount(ctx context.Context, sig models.Signal, horizonMonths int, estimatedCost decimal.Decimal) (uint64, error) {
	if e == nil || e.Repo == nil {
		return 0, ErrNoAccount
	}
	accounts, err := e.Repo.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}
	byType := map[string]*models.Account{}
	for i := range accounts {
		account := accounts[i]
		if _, ok := byType[account.Type]; !ok {
			byType[account.Type] = &account
		}
	}

	if sig.Action == models.ActionSell {
		if taxable, ok := byType[models.AccountTaxable]; ok {
			if e.hasUnrealizedLoss(ctx, taxable.ID, sig.Symbol) {
				return taxable.ID, nil
			}
		}
		// Exits without a harvest angle route to wherever the shares sit.
		positions, err := e.Repo.ListPositionsBySymbol(ctx, sig.Symbol)
		if err != nil {
			return 0, err
		}
		if len(positions) > 0 {
			return positions[0].AccountID, nil
		}
		return 0, ErrNoAccount
	}

	shortHorizon := e.Config.ShortHorizonMo
	if shortHorizon <= 0 {
		shortHorizon = 6
	}
	if horizonMonths > 0 && horizonMonths <= shortHorizon {
		if account, ok := byType[models.AccountTaxFree]; ok && account.Cash.GreaterThanOrEqual(estimatedCost) {
			return account.ID, nil
		}
	}

	for _, accountType := range accountPriority {
		account, ok := byType[accountType]
		if !ok {
			continue
		}
		if account.Cash.GreaterThanOrEqual(estimatedCost) {
			return account.ID, nil
		}
	}
	return 0, ErrNoAccount
}

func (e *Engine) hasUnrealizedLoss(ctx context.Context, accountID uint64, symbol string) bool {
	lots, err := e.Repo.ListOpenLots(ctx, accountID, symbol, true)
	if err != nil || len(lots) == 0 {
		return false
	}
	basis := decimal.Zero
	shares := decimal.Zero
	for _, lot := range lots {
		basis = basis.Add(lot.CostBasis)
		shares = shares.Add(lot.Shares)
	}
	price := e.priceOrCostBasis(ctx, symbol, basis, shares)
	return shares.Mul(price).LessThan(basis)
}
