package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradedesk/internal/audit"
	"tradedesk/internal/broker"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/taxledger"
)

var (
	ErrNoPosition    = fmt.Errorf("execution: no open position")
	ErrUnknownAction = fmt.Errorf("execution: unknown action")
)

// Matcher applies confirmed fills to the books. Every fill runs as one
// transaction covering lots, position, cash and the trade record; a fill is
// final once applied and is never rolled back afterwards.
type Matcher struct {
	Repo   repository.Repository
	Ledger *taxledger.Engine
	Logger *zap.Logger
	Audit  *audit.Recorder
}

// Result summarizes what one fill did to the books.
type Result struct {
	Trade       *models.Trade
	RealizedPnL decimal.Decimal
	LotIDs      []uint64
	WashSale    bool
}

// Apply books the fill for the given action. Long entries and exits maintain
// tax lots; short entries and covers settle against the position's average
// price since no acquisition lots exist on the short side.
func (m *Matcher) Apply(ctx context.Context, action string, fill *broker.Fill) (*Result, error) {
	if m == nil || m.Repo == nil || fill == nil {
		return nil, fmt.Errorf("execution: matcher not configured")
	}
	var res *Result
	var err error
	switch action {
	case models.ActionBuy:
		res, err = m.applyBuy(ctx, fill)
	case models.ActionSell:
		res, err = m.applySell(ctx, fill)
	case models.ActionShort:
		res, err = m.applyShort(ctx, fill)
	case models.ActionCover:
		res, err = m.applyCover(ctx, fill)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if err != nil {
		return nil, err
	}

	if fill.SignalID != nil {
		if _, err := m.Repo.MarkSignalExecuted(ctx, *fill.SignalID, fill.OrderID, fill.FilledAt); err != nil && m.Logger != nil {
			m.Logger.Warn("mark signal executed failed", zap.Uint64("signal_id", *fill.SignalID), zap.Error(err))
		}
	}
	if m.Audit != nil {
		m.Audit.Record(ctx, "matcher", "fill_applied", "trade", res.Trade.ID, map[string]any{
			"symbol":       fill.Symbol,
			"action":       action,
			"shares":       fill.Shares.String(),
			"price":        fill.Price.String(),
			"realized_pnl": res.RealizedPnL.String(),
		})
	}
	if m.Logger != nil {
		m.Logger.Info("fill applied",
			zap.String("symbol", fill.Symbol),
			zap.String("action", action),
			zap.String("shares", fill.Shares.String()),
			zap.String("price", fill.Price.String()),
			zap.String("realized_pnl", res.RealizedPnL.String()),
		)
	}
	return res, nil
}

func (m *Matcher) applyBuy(ctx context.Context, fill *broker.Fill) (*Result, error) {
	res := &Result{RealizedPnL: decimal.Zero}
	err := m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		lot := &models.TaxLot{
			AccountID:    fill.AccountID,
			Symbol:       fill.Symbol,
			Shares:       fill.Shares,
			CostPerShare: fill.Price,
			AcquiredAt:   fill.FilledAt,
			SignalID:     fill.SignalID,
		}
		if err := m.Ledger.CreateLot(ctx, tx, lot); err != nil {
			return err
		}
		res.LotIDs = append(res.LotIDs, lot.ID)

		pos, err := m.Repo.GetPositionTx(ctx, tx, fill.AccountID, fill.Symbol)
		if err != nil {
			return err
		}
		if pos == nil {
			pos = &models.Position{
				AccountID: fill.AccountID,
				Symbol:    fill.Symbol,
				Side:      models.SideLong,
				OpenedAt:  fill.FilledAt,
			}
		}
		pos.AvgCost = weightedAvg(pos.AvgCost, pos.Shares, fill.Price, fill.Shares)
		pos.Shares = pos.Shares.Add(fill.Shares)
		if err := m.Repo.UpsertPositionTx(ctx, tx, pos); err != nil {
			return err
		}

		cost := fill.Price.Mul(fill.Shares)
		if err := m.Repo.AdjustAccountCashTx(ctx, tx, fill.AccountID, cost.Neg()); err != nil {
			return err
		}
		return m.insertTrade(ctx, tx, fill, models.ActionBuy, decimal.Zero, res)
	})
	if err != nil {
		return nil, err
	}

	// Watchlist check runs after commit; flagging a lot late is recoverable,
	// an unbooked fill is not.
	if m.Ledger != nil {
		flagged, err := m.Ledger.FlagWashSaleBuy(ctx, fill.Symbol, res.LotIDs, fill.FilledAt)
		if err != nil && m.Logger != nil {
			m.Logger.Warn("wash-sale flag failed", zap.String("symbol", fill.Symbol), zap.Error(err))
		}
		res.WashSale = flagged
	}
	return res, nil
}

func (m *Matcher) applySell(ctx context.Context, fill *broker.Fill) (*Result, error) {
	res := &Result{}
	err := m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		consumed, realized, err := m.Ledger.ConsumeLots(ctx, tx, fill.AccountID, fill.Symbol, fill.Shares, fill.Price, fill.FilledAt, taxledger.FIFO)
		if err != nil {
			return err
		}
		res.RealizedPnL = realized
		for _, c := range consumed {
			res.LotIDs = append(res.LotIDs, c.LotID)
		}

		pos, err := m.Repo.GetPositionTx(ctx, tx, fill.AccountID, fill.Symbol)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("%w: %s in account %d", ErrNoPosition, fill.Symbol, fill.AccountID)
		}
		pos.Shares = pos.Shares.Sub(fill.Shares)
		if pos.Shares.LessThanOrEqual(decimal.Zero) {
			if err := m.Repo.DeletePositionTx(ctx, tx, pos.ID); err != nil {
				return err
			}
		} else if err := m.Repo.UpsertPositionTx(ctx, tx, pos); err != nil {
			return err
		}

		proceeds := fill.Price.Mul(fill.Shares)
		if err := m.Repo.AdjustAccountCashTx(ctx, tx, fill.AccountID, proceeds); err != nil {
			return err
		}
		return m.insertTrade(ctx, tx, fill, models.ActionSell, realized, res)
	})
	if err != nil {
		return nil, err
	}
	m.recordOutcome(ctx, fill, res.RealizedPnL)
	return res, nil
}

func (m *Matcher) applyShort(ctx context.Context, fill *broker.Fill) (*Result, error) {
	res := &Result{RealizedPnL: decimal.Zero}
	err := m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pos, err := m.Repo.GetPositionTx(ctx, tx, fill.AccountID, fill.Symbol)
		if err != nil {
			return err
		}
		if pos == nil {
			pos = &models.Position{
				AccountID: fill.AccountID,
				Symbol:    fill.Symbol,
				Side:      models.SideShort,
				OpenedAt:  fill.FilledAt,
			}
		}
		pos.AvgCost = weightedAvg(pos.AvgCost, pos.Shares, fill.Price, fill.Shares)
		pos.Shares = pos.Shares.Add(fill.Shares)
		if err := m.Repo.UpsertPositionTx(ctx, tx, pos); err != nil {
			return err
		}

		proceeds := fill.Price.Mul(fill.Shares)
		if err := m.Repo.AdjustAccountCashTx(ctx, tx, fill.AccountID, proceeds); err != nil {
			return err
		}
		return m.insertTrade(ctx, tx, fill, models.ActionShort, decimal.Zero, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Matcher) applyCover(ctx context.Context, fill *broker.Fill) (*Result, error) {
	res := &Result{}
	err := m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pos, err := m.Repo.GetPositionTx(ctx, tx, fill.AccountID, fill.Symbol)
		if err != nil {
			return err
		}
		if pos == nil || pos.Side != models.SideShort {
			return fmt.Errorf("%w: no short %s in account %d", ErrNoPosition, fill.Symbol, fill.AccountID)
		}
		realized := pos.AvgCost.Sub(fill.Price).Mul(fill.Shares)
		res.RealizedPnL = realized

		pos.Shares = pos.Shares.Sub(fill.Shares)
		if pos.Shares.LessThanOrEqual(decimal.Zero) {
			if err := m.Repo.DeletePositionTx(ctx, tx, pos.ID); err != nil {
				return err
			}
		} else if err := m.Repo.UpsertPositionTx(ctx, tx, pos); err != nil {
			return err
		}

		cost := fill.Price.Mul(fill.Shares)
		if err := m.Repo.AdjustAccountCashTx(ctx, tx, fill.AccountID, cost.Neg()); err != nil {
			return err
		}
		return m.insertTrade(ctx, tx, fill, models.ActionCover, realized, res)
	})
	if err != nil {
		return nil, err
	}
	m.recordOutcome(ctx, fill, res.RealizedPnL)
	return res, nil
}

func (m *Matcher) insertTrade(ctx context.Context, tx *gorm.DB, fill *broker.Fill, action string, realized decimal.Decimal, res *Result) error {
	trade := &models.Trade{
		SignalID:    fill.SignalID,
		AccountID:   fill.AccountID,
		Symbol:      fill.Symbol,
		Action:      action,
		Shares:      fill.Shares,
		Price:       fill.Price,
		RealizedPnL: realized,
		OrderID:     fill.OrderID,
		FilledAt:    fill.FilledAt,
	}
	if err := m.Repo.InsertTradeTx(ctx, tx, trade); err != nil {
		return err
	}
	res.Trade = trade
	return nil
}

// recordOutcome feeds realized results back into source calibration for
// signal-driven exits.
func (m *Matcher) recordOutcome(ctx context.Context, fill *broker.Fill, realized decimal.Decimal) {
	if fill.SignalID == nil {
		return
	}
	sig, err := m.Repo.GetSignalByID(ctx, *fill.SignalID)
	if err != nil || sig == nil {
		return
	}
	if err := m.Repo.RecordSourceOutcome(ctx, sig.SourceType, realized.GreaterThan(decimal.Zero)); err != nil && m.Logger != nil {
		m.Logger.Warn("record source outcome failed", zap.String("source", sig.SourceType), zap.Error(err))
	}
}

// weightedAvg is the running average cost after adding shares at a price.
func weightedAvg(oldAvg, oldShares, price, newShares decimal.Decimal) decimal.Decimal {
	total := oldShares.Add(newShares)
	if total.LessThanOrEqual(decimal.Zero) {
		return price
	}
	return oldAvg.Mul(oldShares).Add(price.Mul(newShares)).Div(total)
}
