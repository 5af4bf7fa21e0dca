package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/broker"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/risk"
	"tradedesk/internal/taxledger"
)

var (
	ErrNotApproved  = fmt.Errorf("execution: signal not approved")
	ErrNoQuote      = fmt.Errorf("execution: no quote available")
	ErrOrderBlocked = fmt.Errorf("execution: order blocked")
)

// Executor turns an APPROVED signal into a broker order and books the
// resulting fill. The risk gate runs one final time right before the order
// goes out; approval age makes the earlier check stale.
type Executor struct {
	Repo    repository.Repository
	Broker  broker.Broker
	Matcher *Matcher
	Ledger  *taxledger.Engine
	Gate    *risk.Gate
	Logger  *zap.Logger
}

// Execute places the order for an approved signal, routing it to the
// recommended account, and applies the fill. Returns the realized P&L for
// exits, zero for entries.
//
// The client order id is persisted on the signal before the order goes out.
// A signal that still carries one is a retry after a failed booking: the
// stored id is replayed, and the broker returns the original order for a
// known client order id instead of executing again.
func (x *Executor) Execute(ctx context.Context, signalID uint64) (decimal.Decimal, error) {
	sig, err := x.Repo.GetSignalByID(ctx, signalID)
	if err != nil {
		return decimal.Zero, err
	}
	if sig == nil || sig.Status != models.SignalApproved {
		return decimal.Zero, ErrNotApproved
	}

	// Gate only the first placement. Once the order is with the broker,
	// blocking the retry cannot undo it; the fill still has to be booked.
	if sig.OrderID == nil && x.Gate != nil {
		result, err := x.Gate.PreTradeCheck(ctx, *sig)
		if err != nil {
			return decimal.Zero, err
		}
		if !result.Passed {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrOrderBlocked, result.Reason)
		}
	}

	price, err := x.quote(ctx, sig.Symbol)
	if err != nil {
		return decimal.Zero, err
	}

	horizon := 12
	if sig.ThesisID != nil {
		if th, err := x.Repo.GetThesisByID(ctx, *sig.ThesisID); err == nil && th != nil {
			horizon = th.HorizonMonths
		}
	}

	var accountID uint64
	var shares decimal.Decimal
	switch sig.Action {
	case models.ActionSell, models.ActionCover:
		accountID, shares, err = x.exitTarget(ctx, sig, horizon)
	default:
		shares, err = x.entryShares(ctx, sig, price)
		if err == nil {
			accountID, err = x.Ledger.RecommendAccount(ctx, *sig, horizon, price.Mul(shares))
		}
	}
	if err != nil {
		return decimal.Zero, err
	}

	var clientOrderID string
	if sig.OrderID != nil {
		clientOrderID = *sig.OrderID
	} else {
		clientOrderID = uuid.NewString()
		if err := x.Repo.SetSignalOrderID(ctx, sig.ID, clientOrderID); err != nil {
			return decimal.Zero, err
		}
	}

	req := broker.OrderRequest{
		ClientOrderID: clientOrderID,
		AccountID:     accountID,
		SignalID:      &sig.ID,
		Symbol:        sig.Symbol,
		Side:          orderSide(sig.Action),
		Shares:        shares,
	}
	order, err := x.Broker.PlaceOrder(ctx, req)
	if err != nil {
		return decimal.Zero, err
	}
	if x.Logger != nil {
		x.Logger.Info("order placed",
			zap.Uint64("signal_id", sig.ID),
			zap.String("order_id", order.ID),
			zap.String("client_order_id", clientOrderID),
			zap.String("symbol", sig.Symbol),
			zap.String("shares", order.Shares.String()),
		)
	}

	fill, ok := broker.FillFromOrder(order, req)
	if !ok {
		// Not filled yet; reconciliation picks it up on the next poll.
		return decimal.Zero, nil
	}
	res, err := x.Matcher.Apply(ctx, sig.Action, fill)
	if err != nil {
		return decimal.Zero, err
	}
	return res.RealizedPnL, nil
}

// Reconcile polls an outstanding order and books the fill once confirmed.
func (x *Executor) Reconcile(ctx context.Context, sig *models.Signal, req broker.OrderRequest, orderID string) (bool, error) {
	order, err := x.Broker.GetOrderStatus(ctx, orderID)
	if err != nil {
		return false, err
	}
	fill, ok := broker.FillFromOrder(order, req)
	if !ok {
		return false, nil
	}
	if _, err := x.Matcher.Apply(ctx, sig.Action, fill); err != nil {
		return false, err
	}
	return true, nil
}

func (x *Executor) quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if x.Ledger == nil || x.Ledger.Quotes == nil {
		return decimal.Zero, ErrNoQuote
	}
	quote, err := x.Ledger.Quotes.GetQuote(ctx, symbol)
	if err != nil || quote == nil || quote.Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrNoQuote
	}
	return quote.Price, nil
}

// exitTarget resolves the single account an exit trades in and sizes the
// order to that account's holding. The fill books into one account, so
// summing shares across accounts would sell more than the routed account
// holds.
func (x *Executor) exitTarget(ctx context.Context, sig *models.Signal, horizon int) (uint64, decimal.Decimal, error) {
	positions, err := x.Repo.ListPositionsBySymbol(ctx, sig.Symbol)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if sig.Action == models.ActionCover {
		for _, p := range positions {
			if p.Side == models.SideShort && p.Shares.GreaterThan(decimal.Zero) {
				return p.AccountID, p.Shares, nil
			}
		}
		return 0, decimal.Zero, fmt.Errorf("%w: no short %s", ErrNoPosition, sig.Symbol)
	}
	accountID, err := x.Ledger.RecommendAccount(ctx, *sig, horizon, decimal.Zero)
	if err != nil {
		return 0, decimal.Zero, err
	}
	for _, p := range positions {
		if p.AccountID == accountID && p.Side == models.SideLong && p.Shares.GreaterThan(decimal.Zero) {
			return accountID, p.Shares, nil
		}
	}
	return 0, decimal.Zero, fmt.Errorf("%w: %s", ErrNoPosition, sig.Symbol)
}

// entryShares sizes an entry from the signal's NAV fraction.
func (x *Executor) entryShares(ctx context.Context, sig *models.Signal, price decimal.Decimal) (decimal.Decimal, error) {
	exposure, err := x.Gate.Exposure(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	budget := exposure.NAV.Mul(decimal.NewFromFloat(sig.SizePct))
	if budget.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("execution: zero budget for %s", sig.Symbol)
	}
	shares := budget.Div(price).Floor()
	if shares.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("execution: budget %s below one share of %s", budget.StringFixed(2), sig.Symbol)
	}
	return shares, nil
}

func orderSide(action string) string {
	switch action {
	case models.ActionSell, models.ActionShort:
		return broker.SideSell
	default:
		return broker.SideBuy
	}
}
