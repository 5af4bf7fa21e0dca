package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

// ExposureSnapshot holds portfolio exposure normalized by NAV. All fields are
// zero when NAV is not positive.
type ExposureSnapshot struct {
	NAV        decimal.Decimal
	LongValue  decimal.Decimal
	ShortValue decimal.Decimal

	GrossPct float64
	NetPct   float64

	// BySymbol is each symbol's exposure as a fraction of NAV.
	BySymbol map[string]float64
}

// computeExposure sums shares*avg_cost per side over open positions and
// normalizes by NAV = cash + long - short.
func computeExposure(accounts []models.Account, positions []models.Position) ExposureSnapshot {
	out := ExposureSnapshot{
		LongValue:  decimal.Zero,
		ShortValue: decimal.Zero,
		BySymbol:   map[string]float64{},
	}
	cash := decimal.Zero
	for _, a := range accounts {
		cash = cash.Add(a.Cash)
	}
	symbolValue := map[string]decimal.Decimal{}
	for _, p := range positions {
		value := p.Shares.Mul(p.AvgCost)
		if p.Side == models.SideShort {
			out.ShortValue = out.ShortValue.Add(value)
		} else {
			out.LongValue = out.LongValue.Add(value)
		}
		symbolValue[p.Symbol] = symbolValue[p.Symbol].Add(value)
	}
	out.NAV = cash.Add(out.LongValue).Sub(out.ShortValue)
	if out.NAV.LessThanOrEqual(decimal.Zero) {
		return out
	}
	nav, _ := out.NAV.Float64()
	gross, _ := out.LongValue.Add(out.ShortValue).Float64()
	net, _ := out.LongValue.Sub(out.ShortValue).Float64()
	out.GrossPct = gross / nav
	out.NetPct = net / nav
	for symbol, value := range symbolValue {
		f, _ := value.Float64()
		out.BySymbol[symbol] = f / nav
	}
	return out
}

// Exposure loads accounts and open positions and computes the snapshot.
func (g *Gate) Exposure(ctx context.Context) (ExposureSnapshot, error) {
	accounts, err := g.Repo.ListAccounts(ctx)
	if err != nil {
		return ExposureSnapshot{BySymbol: map[string]float64{}}, err
	}
	positions, err := g.Repo.ListOpenPositions(ctx)
	if err != nil {
		return ExposureSnapshot{BySymbol: map[string]float64{}}, err
	}
	return computeExposure(accounts, positions), nil
}
