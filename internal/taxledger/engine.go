package taxledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradedesk/internal/config"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

type LotMethod string

const (
	FIFO LotMethod = "fifo"
	LIFO LotMethod = "lifo"
)

// ErrInsufficientShares is an insufficient-resource error: the order is
// rejected with a descriptive reason, not executed.
var ErrInsufficientShares = fmt.Errorf("taxledger: insufficient open shares")

type Engine struct {
	Config config.TaxConfig
	Repo   repository.Repository
	Quotes marketdata.QuoteProvider
	Logger *zap.Logger
}

// LotConsumption records one lot's contribution to a sale.
type LotConsumption struct {
	LotID        uint64
	Shares       decimal.Decimal
	CostPerShare decimal.Decimal
	CostBasis    decimal.Decimal
	AcquiredAt   time.Time
	LongTerm     bool
	RealizedPnL  decimal.Decimal
}

// lotCut pairs an open lot with the shares to take from it.
type lotCut struct {
	lot  models.TaxLot
	take decimal.Decimal
}

// planConsumption walks lots in the caller's order and takes
// min(remaining, lot.shares) from each until the sale is satisfied.
// Pure so the conservation law is testable without a store.
func planConsumption(lots []models.TaxLot, shares decimal.Decimal) ([]lotCut, error) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	remaining := shares
	var cuts []lotCut
	for _, lot := range lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if !lot.Open() {
			continue
		}
		take := decimal.Min(remaining, lot.Shares)
		cuts = append(cuts, lotCut{lot: lot, take: take})
		remaining = remaining.Sub(take)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientShares, remaining.String())
	}
	return cuts, nil
}

// ConsumeLots consumes open lots for a sale inside the caller's transaction.
// Fully consumed lots are closed in place (shares zeroed, sold date/price
// recorded); partially consumed lots are proportionally reduced and a closed
// split row is written for the sold portion, conserving total shares and cost
// basis. Every loss-producing cut writes a wash-sale watchlist entry.
func (e *Engine) ConsumeLots(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string, shares, price decimal.Decimal, soldAt time.Time, method LotMethod) ([]LotConsumption, decimal.Decimal, error) {
	if e == nil || e.Repo == nil {
		return nil, decimal.Zero, nil
	}
	lots, err := e.Repo.ListOpenLotsTx(ctx, tx, accountID, symbol, method != LIFO)
	if err != nil {
		return nil, decimal.Zero, err
	}
	cuts, err := planConsumption(lots, shares)
	if err != nil {
		return nil, decimal.Zero, err
	}

	washWindow := time.Duration(e.washWindowDays()) * 24 * time.Hour
	realized := decimal.Zero
	out := make([]LotConsumption, 0, len(cuts))
	for _, cut := range cuts {
		lot := cut.lot
		take := cut.take
		pnl := price.Sub(lot.CostPerShare).Mul(take)
		realized = realized.Add(pnl)

		if take.Equal(lot.Shares) {
			lot.Shares = decimal.Zero
			lot.SoldShares = lot.SoldShares.Add(take)
			lot.CostBasis = lot.CostPerShare.Mul(lot.SoldShares)
			lot.SoldAt = &soldAt
			lot.SoldPrice = &price
			if err := e.Repo.SaveTaxLotTx(ctx, tx, &lot); err != nil {
				return nil, decimal.Zero, err
			}
		} else {
			lot.Shares = lot.Shares.Sub(take)
			lot.CostBasis = lot.CostPerShare.Mul(lot.Shares)
			if err := e.Repo.SaveTaxLotTx(ctx, tx, &lot); err != nil {
				return nil, decimal.Zero, err
			}
			split := &models.TaxLot{
				AccountID:    lot.AccountID,
				Symbol:       lot.Symbol,
				Shares:       decimal.Zero,
				SoldShares:   take,
				CostPerShare: lot.CostPerShare,
				CostBasis:    lot.CostPerShare.Mul(take),
				AcquiredAt:   lot.AcquiredAt,
				SoldAt:       &soldAt,
				SoldPrice:    &price,
				SignalID:     lot.SignalID,
			}
			if err := e.Repo.InsertTaxLotTx(ctx, tx, split); err != nil {
				return nil, decimal.Zero, err
			}
		}

		if pnl.LessThan(decimal.Zero) {
			entry := &models.WashSaleEntry{
				Symbol:     symbol,
				AccountID:  accountID,
				LotID:      lot.ID,
				LossAmount: pnl.Neg(),
				SoldAt:     soldAt,
				ExpiresAt:  soldAt.Add(washWindow),
			}
			if err := e.Repo.InsertWashSaleEntryTx(ctx, tx, entry); err != nil {
				return nil, decimal.Zero, err
			}
		}

		out = append(out, LotConsumption{
			LotID:        lot.ID,
			Shares:       take,
			CostPerShare: lot.CostPerShare,
			CostBasis:    lot.CostPerShare.Mul(take),
			AcquiredAt:   lot.AcquiredAt,
			LongTerm:     soldAt.Sub(lot.AcquiredAt) >= 365*24*time.Hour,
			RealizedPnL:  pnl,
		})
	}

	if e.Logger != nil {
		e.Logger.Debug("lots consumed",
			zap.Uint64("account_id", accountID),
			zap.String("symbol", symbol),
			zap.String("shares", shares.String()),
			zap.String("realized_pnl", realized.String()),
			zap.Int("lots", len(out)),
		)
	}
	return out, realized, nil
}

// CreateLot records a new acquisition.
func (e *Engine) CreateLot(ctx context.Context, tx *gorm.DB, lot *models.TaxLot) error {
	if e == nil || e.Repo == nil || lot == nil {
		return nil
	}
	if lot.CostBasis.IsZero() {
		lot.CostBasis = lot.CostPerShare.Mul(lot.Shares)
	}
	return e.Repo.InsertTaxLotTx(ctx, tx, lot)
}

func (e *Engine) washWindowDays() int {
	if e == nil || e.Config.WashWindowDays <= 0 {
		return 30
	}
	return e.Config.WashWindowDays
}
