package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses.
const (
	OrderAccepted  = "accepted"
	OrderFilled    = "filled"
	OrderCancelled = "cancelled"
	OrderRejected  = "rejected"
)

var ErrOrderNotFound = fmt.Errorf("broker: order not found")

// OrderRequest carries a caller-assigned ClientOrderID so a retried place
// never executes twice.
type OrderRequest struct {
	ClientOrderID string
	AccountID     uint64
	SignalID      *uint64
	Symbol        string
	Side          string
	Shares        decimal.Decimal
	LimitPrice    *decimal.Decimal
}

type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          string
	Shares        decimal.Decimal
	Status        string
	FilledPrice   *decimal.Decimal
	FilledAt      *time.Time
	FailureReason string
}

// Fill is the single event shape every Broker implementation produces once a
// fill is confirmed. Once emitted the trade is final: reconciled, never
// rolled back.
type Fill struct {
	OrderID   string
	AccountID uint64
	SignalID  *uint64
	Symbol    string
	Side      string
	Shares    decimal.Decimal
	Price     decimal.Decimal
	FilledAt  time.Time
}

type BrokerPosition struct {
	Symbol string
	Shares decimal.Decimal
}

// Broker is the execution capability. Implementations: the instant-fill
// simulator and the live alpaca adapter.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)
}

// FillFromOrder converts a filled order into a Fill event.
func FillFromOrder(order *Order, req OrderRequest) (*Fill, bool) {
	if order == nil || order.Status != OrderFilled || order.FilledPrice == nil {
		return nil, false
	}
	filledAt := time.Now().UTC()
	if order.FilledAt != nil {
		filledAt = *order.FilledAt
	}
	return &Fill{
		OrderID:   order.ID,
		AccountID: req.AccountID,
		SignalID:  req.SignalID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Shares:    order.Shares,
		Price:     *order.FilledPrice,
		FilledAt:  filledAt,
	}, true
}
