package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/marketdata"
)

// Simulator is an instant-fill broker. Every accepted order fills at the
// current quote (or the limit price when no quote is available).
type Simulator struct {
	Quotes marketdata.QuoteProvider
	Logger *zap.Logger

	mu       sync.Mutex
	orders   map[string]*Order
	byClient map[string]string
	cash     decimal.Decimal
}

func NewSimulator(quotes marketdata.QuoteProvider, startingCash decimal.Decimal, logger *zap.Logger) *Simulator {
	return &Simulator{
		Quotes:   quotes,
		Logger:   logger,
		orders:   map[string]*Order{},
		byClient: map[string]string{},
		cash:     startingCash,
	}
}

var _ Broker = (*Simulator)(nil)

func (s *Simulator) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replaying the same client order id returns the original order.
	if req.ClientOrderID != "" {
		if id, ok := s.byClient[req.ClientOrderID]; ok {
			return s.orders[id], nil
		}
	}
	if req.Shares.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("broker: non-positive share count %s", req.Shares.String())
	}

	price := decimal.Zero
	if s.Quotes != nil {
		if quote, err := s.Quotes.GetQuote(ctx, req.Symbol); err == nil && quote != nil {
			price = quote.Price
		}
	}
	if price.LessThanOrEqual(decimal.Zero) && req.LimitPrice != nil {
		price = *req.LimitPrice
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("broker: no price available for %s", req.Symbol)
	}

	now := time.Now().UTC()
	order := &Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Shares:        req.Shares,
		Status:        OrderFilled,
		FilledPrice:   &price,
		FilledAt:      &now,
	}
	s.orders[order.ID] = order
	if req.ClientOrderID != "" {
		s.byClient[req.ClientOrderID] = order.ID
	}
	cost := price.Mul(req.Shares)
	if req.Side == SideBuy {
		s.cash = s.cash.Sub(cost)
	} else {
		s.cash = s.cash.Add(cost)
	}
	if s.Logger != nil {
		s.Logger.Debug("sim fill",
			zap.String("order_id", order.ID),
			zap.String("symbol", req.Symbol),
			zap.String("side", req.Side),
			zap.String("price", price.String()),
		)
	}
	return order, nil
}

func (s *Simulator) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Simulator) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	// Instant fills leave nothing to cancel.
	if order.Status == OrderFilled {
		return fmt.Errorf("broker: order %s already filled", orderID)
	}
	order.Status = OrderCancelled
	return nil
}

func (s *Simulator) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]decimal.Decimal{}
	order := []string{}
	for _, o := range s.orders {
		if o.Status != OrderFilled {
			continue
		}
		if _, ok := totals[o.Symbol]; !ok {
			order = append(order, o.Symbol)
		}
		if o.Side == SideBuy {
			totals[o.Symbol] = totals[o.Symbol].Add(o.Shares)
		} else {
			totals[o.Symbol] = totals[o.Symbol].Sub(o.Shares)
		}
	}
	out := make([]BrokerPosition, 0, len(order))
	for _, symbol := range order {
		if totals[symbol].IsZero() {
			continue
		}
		out = append(out, BrokerPosition{Symbol: symbol, Shares: totals[symbol]})
	}
	return out, nil
}

func (s *Simulator) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash, nil
}
