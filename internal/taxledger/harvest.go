package taxledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// replacementTickers maps a symbol to a similar-but-not-identical substitute,
// so a harvested position keeps its market exposure without tripping the
// substantially-identical rule.
var replacementTickers = map[string]string{
	"SPY":  "VOO",
	"VOO":  "IVV",
	"IVV":  "SPY",
	"QQQ":  "QQQM",
	"VTI":  "SCHB",
	"IWM":  "VTWO",
	"AAPL": "VGT",
	"MSFT": "VGT",
	"GOOG": "VOX",
	"AMZN": "VCR",
	"NVDA": "SMH",
	"TSLA": "VCR",
}

type HarvestCandidate struct {
	AccountID      uint64
	Symbol         string
	Shares         decimal.Decimal
	CostBasis      decimal.Decimal
	MarketValue    decimal.Decimal
	UnrealizedLoss decimal.Decimal
	LossPct        float64
	Replacement    string
	WashSaleRisk   bool
}

// FindHarvestCandidates scans taxable accounts for symbols whose aggregate
// unrealized loss clears either the dollar floor or the percentage floor.
// Quote failures fall back to cost basis, which shows no loss; that symbol is
// simply skipped rather than aborting the scan.
func (e *Engine) FindHarvestCandidates(ctx context.Context, minLoss decimal.Decimal, minLossPct float64) ([]HarvestCandidate, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	if minLoss.LessThanOrEqual(decimal.Zero) {
		minLoss = decimal.NewFromFloat(e.Config.HarvestMinLoss)
	}
	if minLossPct <= 0 {
		minLossPct = e.Config.HarvestMinPct
	}

	accounts, err := e.Repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var out []HarvestCandidate
	for _, account := range accounts {
		if account.TaxAdvantaged() {
			continue
		}
		lots, err := e.Repo.ListOpenLotsByAccount(ctx, account.ID)
		if err != nil {
			return nil, err
		}

		type agg struct {
			shares decimal.Decimal
			basis  decimal.Decimal
		}
		bySymbol := map[string]*agg{}
		order := []string{}
		for _, lot := range lots {
			a, ok := bySymbol[lot.Symbol]
			if !ok {
				a = &agg{shares: decimal.Zero, basis: decimal.Zero}
				bySymbol[lot.Symbol] = a
				order = append(order, lot.Symbol)
			}
			a.shares = a.shares.Add(lot.Shares)
			a.basis = a.basis.Add(lot.CostBasis)
		}

		for _, symbol := range order {
			a := bySymbol[symbol]
			price := e.priceOrCostBasis(ctx, symbol, a.basis, a.shares)
			value := a.shares.Mul(price)
			loss := a.basis.Sub(value)
			if loss.LessThanOrEqual(decimal.Zero) {
				continue
			}
			lossPct := 0.0
			if a.basis.GreaterThan(decimal.Zero) {
				f, _ := loss.Div(a.basis).Float64()
				lossPct = f
			}
			if loss.LessThan(minLoss) && lossPct < minLossPct {
				continue
			}
			out = append(out, HarvestCandidate{
				AccountID:      account.ID,
				Symbol:         symbol,
				Shares:         a.shares,
				CostBasis:      a.basis,
				MarketValue:    value,
				UnrealizedLoss: loss,
				LossPct:        lossPct,
				Replacement:    replacementTickers[symbol],
				WashSaleRisk:   e.heldElsewhere(ctx, symbol, account.ID),
			})
		}
	}
	if e.Logger != nil {
		e.Logger.Info("harvest scan complete", zap.Int("candidates", len(out)))
	}
	return out, nil
}

func (e *Engine) priceOrCostBasis(ctx context.Context, symbol string, basis, shares decimal.Decimal) decimal.Decimal {
	if e.Quotes != nil {
		quote, err := e.Quotes.GetQuote(ctx, symbol)
		if err == nil && quote != nil && quote.Price.GreaterThan(decimal.Zero) {
			return quote.Price
		}
		if err != nil && e.Logger != nil {
			e.Logger.Warn("quote unavailable, using cost basis", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if shares.GreaterThan(decimal.Zero) {
		return basis.Div(shares)
	}
	return decimal.Zero
}

// heldElsewhere reports whether the same symbol is open in any other account,
// which makes harvesting it a wash-sale risk.
func (e *Engine) heldElsewhere(ctx context.Context, symbol string, accountID uint64) bool {
	lots, err := e.Repo.ListOpenLotsBySymbol(ctx, symbol)
	if err != nil {
		return false
	}
	for _, lot := range lots {
		if lot.AccountID != accountID {
			return true
		}
	}
	return false
}
