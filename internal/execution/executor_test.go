package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gorm.io/gorm"

	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/risk"
	"tradedesk/internal/taxledger"
)

// deskStub extends the book stub with the lookups the executor and risk
// gate need for a full approve-to-fill run.
type deskStub struct {
	*bookStub

	accounts []models.Account
	theses   map[uint64]*models.Thesis
}

func newDeskStub() *deskStub {
	return &deskStub{
		bookStub: newBookStub(),
		theses:   map[uint64]*models.Thesis{},
	}
}

func (s *deskStub) ListAccounts(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, len(s.accounts))
	for i, a := range s.accounts {
		a.Cash = s.cash[a.ID]
		out[i] = a
	}
	return out, nil
}

func (s *deskStub) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *deskStub) ListPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		if p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *deskStub) GetThesisByID(ctx context.Context, id uint64) (*models.Thesis, error) {
	return s.theses[id], nil
}

func (s *deskStub) GetRiskLimitByName(ctx context.Context, name string) (*models.RiskLimit, error) {
	return nil, nil
}

func (s *deskStub) ListTradingWindows(ctx context.Context, symbol string) ([]models.TradingWindow, error) {
	return nil, nil
}

func (s *deskStub) HighWaterNAV(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *deskStub) FirstSnapshotOnOrAfter(ctx context.Context, at time.Time) (*models.PortfolioSnapshot, error) {
	return nil, nil
}

func (s *deskStub) LatestKillSwitchEvent(ctx context.Context) (*models.KillSwitchEvent, error) {
	return nil, nil
}

type deskQuotes struct {
	prices map[string]decimal.Decimal
}

func (q *deskQuotes) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &marketdata.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (q *deskQuotes) GetHistory(ctx context.Context, symbol string, days int) ([]marketdata.Bar, error) {
	return nil, nil
}

func (q *deskQuotes) GetFundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error) {
	return &marketdata.Fundamentals{Symbol: symbol}, nil
}

func newExecutor(repo repository.Repository) *Executor {
	quotes := &deskQuotes{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)}}
	ledger := &taxledger.Engine{
		Config: config.TaxConfig{WashWindowDays: 30},
		Repo:   repo,
		Quotes: quotes,
	}
	gate := &risk.Gate{
		Config: config.RiskConfig{
			MaxPositionPct:   0.15,
			MaxGrossExposure: 1.5,
			NetExposureMin:   -0.5,
			NetExposureMax:   1.2,
			MaxDrawdown:      0.20,
			DailyLossLimit:   0.03,
		},
		Repo:   repo,
		Switch: &risk.KillSwitch{Repo: repo},
	}
	return &Executor{
		Repo:    repo,
		Broker:  broker.NewSimulator(quotes, decimal.NewFromInt(1_000_000), nil),
		Matcher: &Matcher{Repo: repo, Ledger: ledger},
		Ledger:  ledger,
		Gate:    gate,
	}
}

func TestExecuteApprovedBuy(t *testing.T) {
	stub := newDeskStub()
	stub.accounts = []models.Account{{ID: 1, Name: "ira", Type: models.AccountTaxFree}}
	stub.cash[1] = decimal.NewFromInt(100_000)
	thesisID := uint64(1)
	stub.theses[1] = &models.Thesis{ID: 1, Status: models.ThesisActive, HorizonMonths: 3}
	stub.signals[1] = &models.Signal{
		ID: 1, ThesisID: &thesisID,
		Action: models.ActionBuy, Symbol: "AAPL",
		Status: models.SignalApproved, SizePct: 0.10,
	}
	x := newExecutor(stub)

	pnl, err := x.Execute(context.Background(), 1)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !pnl.IsZero() {
		t.Fatalf("entry realized = %s, want 0", pnl)
	}

	// NAV 100k * 10% / $150 = 66 shares.
	pos := stub.onlyPosition(t)
	if !pos.Shares.Equal(decimal.NewFromInt(66)) {
		t.Fatalf("position = %s sh, want 66", pos.Shares)
	}
	if pos.AccountID != 1 {
		t.Fatalf("short-horizon entry routed to account %d, want tax-free 1", pos.AccountID)
	}
	if len(stub.lots) != 1 {
		t.Fatalf("want one acquisition lot, got %d", len(stub.lots))
	}
	if !stub.cash[1].Equal(decimal.NewFromInt(100_000 - 66*150)) {
		t.Fatalf("cash = %s, want %d", stub.cash[1], 100_000-66*150)
	}
	if stub.signals[1].Status != models.SignalExecuted {
		t.Fatalf("signal status = %s, want EXECUTED", stub.signals[1].Status)
	}
}

func TestExecuteExitLiquidatesPosition(t *testing.T) {
	stub := newDeskStub()
	stub.accounts = []models.Account{{ID: 1, Name: "brokerage", Type: models.AccountTaxable}}
	stub.cash[1] = decimal.NewFromInt(10_000)
	stub.positions[1] = &models.Position{
		ID: 1, AccountID: 1, Symbol: "AAPL", Side: models.SideLong,
		Shares: decimal.NewFromInt(40), AvgCost: decimal.NewFromInt(100),
		OpenedAt: time.Now().Add(-400 * 24 * time.Hour),
	}
	stub.lots[1] = &models.TaxLot{
		ID: 1, AccountID: 1, Symbol: "AAPL",
		Shares:       decimal.NewFromInt(40),
		CostPerShare: decimal.NewFromInt(100),
		CostBasis:    decimal.NewFromInt(4_000),
		AcquiredAt:   time.Now().Add(-400 * 24 * time.Hour),
	}
	stub.nextLotID = 1
	stub.nextPosID = 1
	stub.signals[2] = &models.Signal{
		ID: 2, Action: models.ActionSell, Symbol: "AAPL",
		Status: models.SignalApproved, SourceType: models.SourceThesisScan,
	}
	x := newExecutor(stub)

	pnl, err := x.Execute(context.Background(), 2)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// 40 shares, 100 -> 150.
	if !pnl.Equal(decimal.NewFromInt(2_000)) {
		t.Fatalf("realized = %s, want 2000", pnl)
	}
	if len(stub.positions) != 0 {
		t.Fatalf("full exit must delete the position")
	}
	if !stub.cash[1].Equal(decimal.NewFromInt(16_000)) {
		t.Fatalf("cash = %s, want 16000", stub.cash[1])
	}
}

func TestExecuteRequiresApproval(t *testing.T) {
	stub := newDeskStub()
	stub.signals[1] = &models.Signal{ID: 1, Action: models.ActionBuy, Symbol: "AAPL", Status: models.SignalPending}
	x := newExecutor(stub)

	if _, err := x.Execute(context.Background(), 1); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("err = %v, want ErrNotApproved", err)
	}
	if _, err := x.Execute(context.Background(), 99); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("missing signal err = %v, want ErrNotApproved", err)
	}
}

func TestExecuteRechecksRiskGate(t *testing.T) {
	stub := newDeskStub()
	stub.accounts = []models.Account{{ID: 1, Name: "brokerage", Type: models.AccountTaxable}}
	stub.cash[1] = decimal.NewFromInt(100_000)
	stub.signals[1] = &models.Signal{
		ID: 1, Action: models.ActionBuy, Symbol: "AAPL",
		Status: models.SignalApproved, SizePct: 0.10,
	}
	// Kill switch flipped after approval.
	now := time.Now()
	stubWithSwitch := &haltedStub{deskStub: stub, at: now}
	x := newExecutor(stub)
	x.Gate.Repo = stubWithSwitch
	x.Gate.Switch = &risk.KillSwitch{Repo: stubWithSwitch}

	_, err := x.Execute(context.Background(), 1)
	if !errors.Is(err, ErrOrderBlocked) {
		t.Fatalf("err = %v, want ErrOrderBlocked", err)
	}
	if len(stub.trades) != 0 {
		t.Fatalf("blocked order must not book a trade")
	}
}

type haltedStub struct {
	*deskStub
	at time.Time
}

func (s *haltedStub) LatestKillSwitchEvent(ctx context.Context) (*models.KillSwitchEvent, error) {
	return &models.KillSwitchEvent{Active: true, Actor: "ops", Reason: "fat finger", CreatedAt: s.at}, nil
}

// failOnceStub drops the first booking transaction, the way a lost database
// connection between the broker fill and the ledger write would.
type failOnceStub struct {
	*deskStub
	failed bool
}

func (s *failOnceStub) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if !s.failed {
		s.failed = true
		return errors.New("connection reset")
	}
	return s.deskStub.InTx(ctx, fn)
}

func TestExecuteRetryAfterBookingFailure(t *testing.T) {
	stub := newDeskStub()
	stub.accounts = []models.Account{{ID: 1, Name: "brokerage", Type: models.AccountTaxable}}
	stub.cash[1] = decimal.NewFromInt(100_000)
	stub.signals[1] = &models.Signal{
		ID: 1, Action: models.ActionBuy, Symbol: "AAPL",
		Status: models.SignalApproved, SizePct: 0.10,
	}
	flaky := &failOnceStub{deskStub: stub}
	x := newExecutor(flaky)

	if _, err := x.Execute(context.Background(), 1); err == nil {
		t.Fatalf("first run must surface the booking failure")
	}
	if stub.signals[1].Status != models.SignalApproved {
		t.Fatalf("signal status = %s, want APPROVED for the retry", stub.signals[1].Status)
	}
	if stub.signals[1].OrderID == nil {
		t.Fatalf("client order id must be on the signal before the order goes out")
	}

	pnl, err := x.Execute(context.Background(), 1)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !pnl.IsZero() {
		t.Fatalf("entry realized = %s, want 0", pnl)
	}

	// The retry replays the stored client order id; the broker must hold
	// one fill's worth, not two.
	pos := stub.onlyPosition(t)
	if !pos.Shares.Equal(decimal.NewFromInt(66)) {
		t.Fatalf("position = %s sh, want 66", pos.Shares)
	}
	if len(stub.trades) != 1 {
		t.Fatalf("want one booked trade, got %d", len(stub.trades))
	}
	cash, err := x.Broker.GetAccountBalance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !cash.Equal(decimal.NewFromInt(1_000_000 - 66*150)) {
		t.Fatalf("broker cash = %s, want one debit of %d", cash, 66*150)
	}
	if stub.signals[1].Status != models.SignalExecuted {
		t.Fatalf("signal status = %s, want EXECUTED", stub.signals[1].Status)
	}
}

func TestExecuteSellSizedToRoutedAccount(t *testing.T) {
	stub := newDeskStub()
	stub.accounts = []models.Account{
		{ID: 1, Name: "brokerage", Type: models.AccountTaxable},
		{ID: 2, Name: "ira", Type: models.AccountTaxFree},
	}
	stub.cash[1] = decimal.NewFromInt(5_000)
	stub.cash[2] = decimal.NewFromInt(5_000)
	opened := time.Now().Add(-400 * 24 * time.Hour)
	for _, accountID := range []uint64{1, 2} {
		stub.nextPosID++
		stub.positions[stub.nextPosID] = &models.Position{
			ID: stub.nextPosID, AccountID: accountID, Symbol: "AAPL", Side: models.SideLong,
			Shares: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(100),
			OpenedAt: opened,
		}
		stub.nextLotID++
		stub.lots[stub.nextLotID] = &models.TaxLot{
			ID: stub.nextLotID, AccountID: accountID, Symbol: "AAPL",
			Shares:       decimal.NewFromInt(10),
			CostPerShare: decimal.NewFromInt(100),
			CostBasis:    decimal.NewFromInt(1_000),
			AcquiredAt:   opened,
		}
	}
	stub.signals[3] = &models.Signal{
		ID: 3, Action: models.ActionSell, Symbol: "AAPL",
		Status: models.SignalApproved, SourceType: models.SourceThesisScan,
	}
	x := newExecutor(stub)

	pnl, err := x.Execute(context.Background(), 3)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// 10 shares in the routed account, 100 -> 150. Sizing across both
	// accounts would try to sell 20 against 10 held lots and fail.
	if !pnl.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("realized = %s, want 500", pnl)
	}
	if len(stub.trades) != 1 {
		t.Fatalf("want one trade, got %d", len(stub.trades))
	}
	if !stub.trades[0].Shares.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("trade = %s sh, want 10", stub.trades[0].Shares)
	}
	// The other account's holding is untouched.
	pos := stub.onlyPosition(t)
	if !pos.Shares.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("remaining position = %s sh, want 10", pos.Shares)
	}
	if pos.AccountID == stub.trades[0].AccountID {
		t.Fatalf("sell must leave the unrouted account alone")
	}
}
