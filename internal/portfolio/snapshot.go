package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// Snapshotter periodically records portfolio NAV. The risk gate reads these
// rows for the all-time-high and day-start NAV it needs for drawdown and
// daily-loss checks.
type Snapshotter struct {
	Repo   repository.Repository
	Quotes marketdata.QuoteProvider
	Logger *zap.Logger
}

// Take values every open position at the current quote, falling back to
// average cost when the quote is unavailable, and writes one snapshot row.
func (s *Snapshotter) Take(ctx context.Context) (*models.PortfolioSnapshot, error) {
	accounts, err := s.Repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.Repo.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}

	cash := decimal.Zero
	for _, a := range accounts {
		cash = cash.Add(a.Cash)
	}

	longValue := decimal.Zero
	shortValue := decimal.Zero
	unrealized := decimal.Zero
	for _, p := range positions {
		price := s.price(ctx, p.Symbol)
		value := p.MarketValue(price)
		costValue := p.Shares.Mul(p.AvgCost)
		if p.Side == models.SideShort {
			shortValue = shortValue.Add(value)
			unrealized = unrealized.Add(costValue.Sub(value))
		} else {
			longValue = longValue.Add(value)
			unrealized = unrealized.Add(value.Sub(costValue))
		}
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	realized, err := s.Repo.SumRealizedPnLSince(ctx, dayStart)
	if err != nil {
		realized = decimal.Zero
	}

	snap := &models.PortfolioSnapshot{
		SnapshotAt:    time.Now().UTC(),
		Cash:          cash,
		LongValue:     longValue,
		ShortValue:    shortValue,
		NAV:           cash.Add(longValue).Sub(shortValue),
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
	}
	if err := s.Repo.InsertPortfolioSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("portfolio snapshot taken",
			zap.String("nav", snap.NAV.String()),
			zap.String("cash", cash.String()),
			zap.Int("positions", len(positions)),
		)
	}
	return snap, nil
}

func (s *Snapshotter) price(ctx context.Context, symbol string) decimal.Decimal {
	if s.Quotes == nil {
		return decimal.Zero
	}
	quote, err := s.Quotes.GetQuote(ctx, symbol)
	if err != nil || quote == nil {
		return decimal.Zero
	}
	return quote.Price
}
