package alpacabroker

import (
	"context"
	"errors"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/broker"
)

// Adapter is the live Broker backed by alpaca. Every call runs under the
// shared retry policy; auth failures rebuild the client once per burst.
type Adapter struct {
	client *alpaca.Client
	opts   alpaca.ClientOpts
	policy broker.Policy
	logger *zap.Logger
}

var _ broker.Broker = (*Adapter)(nil)

// OptsFromEnv defers to the SDK's APCA_* environment variable handling.
func OptsFromEnv() alpaca.ClientOpts {
	return alpaca.ClientOpts{}
}

func New(opts alpaca.ClientOpts, policy broker.Policy, logger *zap.Logger) *Adapter {
	if policy.Classify == nil {
		policy.Classify = classify
	}
	return &Adapter{
		client: alpaca.NewClient(opts),
		opts:   opts,
		policy: policy,
		logger: logger,
	}
}

// classify maps alpaca API errors onto retry classes.
func classify(err error) broker.ErrorClass {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return broker.Auth
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return broker.Retryable
		default:
			return broker.Fatal
		}
	}
	// Transport-level failures are worth another attempt.
	return broker.Retryable
}

func (a *Adapter) refresh(ctx context.Context) error {
	a.client = alpaca.NewClient(a.opts)
	if a.logger != nil {
		a.logger.Warn("alpaca client rebuilt after auth failure")
	}
	return nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.Order, error) {
	// The client order id makes a retried place idempotent: if the first
	// attempt reached alpaca, the replay is rejected and we fetch the
	// original order instead of executing twice.
	var placed *alpaca.Order
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		if req.ClientOrderID != "" {
			if existing, err := a.client.GetOrderByClientOrderID(req.ClientOrderID); err == nil && existing != nil {
				placed = existing
				return nil
			}
		}
		qty := req.Shares
		order, err := a.client.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          alpaca.Side(req.Side),
			Type:          alpaca.Market,
			TimeInForce:   alpaca.Day,
			ClientOrderID: req.ClientOrderID,
		})
		if err != nil {
			return err
		}
		placed = order
		return nil
	}, a.refresh)
	if err != nil {
		return nil, fmt.Errorf("alpaca place order: %w", err)
	}
	return fromAlpacaOrder(placed), nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (*broker.Order, error) {
	var order *alpaca.Order
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		order, callErr = a.client.GetOrder(orderID)
		return callErr
	}, a.refresh)
	if err != nil {
		return nil, fmt.Errorf("alpaca get order: %w", err)
	}
	return fromAlpacaOrder(order), nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		return a.client.CancelOrder(orderID)
	}, a.refresh)
	if err != nil {
		return fmt.Errorf("alpaca cancel order: %w", err)
	}
	return nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var positions []alpaca.Position
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		positions, callErr = a.client.GetPositions()
		return callErr
	}, a.refresh)
	if err != nil {
		return nil, fmt.Errorf("alpaca get positions: %w", err)
	}
	out := make([]broker.BrokerPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, broker.BrokerPosition{
			Symbol: p.Symbol,
			Shares: p.Qty,
		})
	}
	return out, nil
}

func (a *Adapter) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var account *alpaca.Account
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		account, callErr = a.client.GetAccount()
		return callErr
	}, a.refresh)
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca get account: %w", err)
	}
	return account.Cash, nil
}

func fromAlpacaOrder(order *alpaca.Order) *broker.Order {
	if order == nil {
		return nil
	}
	out := &broker.Order{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Status:        mapStatus(order.Status),
		FilledAt:      order.FilledAt,
	}
	if order.Qty != nil {
		out.Shares = *order.Qty
	}
	if !order.FilledQty.IsZero() {
		out.Shares = order.FilledQty
	}
	if order.FilledAvgPrice != nil {
		price := *order.FilledAvgPrice
		out.FilledPrice = &price
	}
	return out
}

func mapStatus(status string) string {
	switch status {
	case "filled":
		return broker.OrderFilled
	case "canceled", "cancelled", "expired":
		return broker.OrderCancelled
	case "rejected", "suspended":
		return broker.OrderRejected
	default:
		return broker.OrderAccepted
	}
}
