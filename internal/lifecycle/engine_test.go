package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/config"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// lifecycleStub backs decision and expiry tests in memory.
type lifecycleStub struct {
	repository.Repository

	signals    map[uint64]*models.Signal
	whatIfs    []models.WhatIfEntry
	accounts   map[uint64]*models.Account
	oldestLot  *models.TaxLot
	principles []models.Principle
	stats      map[string]*models.SourceStats
}

func newLifecycleStub() *lifecycleStub {
	return &lifecycleStub{
		signals:  map[uint64]*models.Signal{},
		accounts: map[uint64]*models.Account{},
		stats:    map[string]*models.SourceStats{},
	}
}

func (s *lifecycleStub) InsertSignal(ctx context.Context, item *models.Signal) error {
	if item.ID == 0 {
		item.ID = uint64(len(s.signals) + 1)
	}
	copied := *item
	s.signals[item.ID] = &copied
	return nil
}

func (s *lifecycleStub) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	sig, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	copied := *sig
	return &copied, nil
}

func (s *lifecycleStub) DecideSignal(ctx context.Context, id uint64, fromStatus, toStatus, reason string, decidedAt time.Time) (int64, error) {
	sig, ok := s.signals[id]
	if !ok || sig.Status != fromStatus {
		return 0, nil
	}
	sig.Status = toStatus
	sig.DecisionReason = reason
	sig.DecidedAt = &decidedAt
	return 1, nil
}

func (s *lifecycleStub) ListExpiredPendingSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error) {
	var out []models.Signal
	for _, sig := range s.signals {
		if sig.Status == models.SignalPending && sig.ExpiresAt != nil && sig.ExpiresAt.Before(now) {
			out = append(out, *sig)
		}
	}
	return out, nil
}

func (s *lifecycleStub) InsertWhatIfEntry(ctx context.Context, item *models.WhatIfEntry) error {
	item.ID = uint64(len(s.whatIfs) + 1)
	s.whatIfs = append(s.whatIfs, *item)
	return nil
}

func (s *lifecycleStub) ListWhatIfEntries(ctx context.Context, params repository.ListWhatIfParams) ([]models.WhatIfEntry, error) {
	return s.whatIfs, nil
}

func (s *lifecycleStub) UpdateWhatIfReplay(ctx context.Context, id uint64, pnl decimal.Decimal, at time.Time) error {
	for i := range s.whatIfs {
		if s.whatIfs[i].ID == id {
			p := pnl
			s.whatIfs[i].ReplayedPnL = &p
			s.whatIfs[i].ReplayedAt = &at
		}
	}
	return nil
}

func (s *lifecycleStub) ListEnabledPrinciples(ctx context.Context) ([]models.Principle, error) {
	return s.principles, nil
}

func (s *lifecycleStub) GetSourceStats(ctx context.Context, sourceType string) (*models.SourceStats, error) {
	return s.stats[sourceType], nil
}

func (s *lifecycleStub) GetAccountByID(ctx context.Context, id uint64) (*models.Account, error) {
	return s.accounts[id], nil
}

func (s *lifecycleStub) OldestOpenLotExcluding(ctx context.Context, accountID uint64, excludeSymbol string) (*models.TaxLot, error) {
	return s.oldestLot, nil
}

type fixedQuotes struct {
	prices map[string]decimal.Decimal
}

func (q *fixedQuotes) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &marketdata.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (q *fixedQuotes) GetHistory(ctx context.Context, symbol string, days int) ([]marketdata.Bar, error) {
	return nil, nil
}

func (q *fixedQuotes) GetFundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error) {
	return &marketdata.Fundamentals{Symbol: symbol}, nil
}

func newTestEngine(stub *lifecycleStub) *Engine {
	return &Engine{
		Config: config.Config{Lifecycle: config.LifecycleConfig{PendingTTL: 24 * time.Hour}},
		Repo:   stub,
		Quotes: &fixedQuotes{prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)}},
	}
}

func pendingSignal(id uint64) *models.Signal {
	return &models.Signal{
		ID:     id,
		Action: models.ActionBuy,
		Symbol: "AAPL",
		Status: models.SignalPending,
	}
}

func TestApprove(t *testing.T) {
	stub := newLifecycleStub()
	stub.signals[1] = pendingSignal(1)
	engine := newTestEngine(stub)

	outcome, err := engine.Approve(context.Background(), 1, "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if outcome != DecisionApplied {
		t.Fatalf("outcome = %s, want applied", outcome)
	}
	if stub.signals[1].Status != models.SignalApproved {
		t.Fatalf("status = %s, want APPROVED", stub.signals[1].Status)
	}
	if len(stub.whatIfs) != 0 {
		t.Fatalf("approval must not record a what-if entry")
	}
}

func TestRejectRecordsWhatIf(t *testing.T) {
	stub := newLifecycleStub()
	stub.signals[1] = pendingSignal(1)
	engine := newTestEngine(stub)

	outcome, err := engine.Reject(context.Background(), 1, "thesis too young")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if outcome != DecisionApplied {
		t.Fatalf("outcome = %s, want applied", outcome)
	}
	if len(stub.whatIfs) != 1 {
		t.Fatalf("want one what-if entry, got %d", len(stub.whatIfs))
	}
	entry := stub.whatIfs[0]
	if entry.Decision != WhatIfRejected {
		t.Fatalf("decision tag = %s, want rejected", entry.Decision)
	}
	if !entry.PriceAtDecision.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("price at decision = %s, want 150", entry.PriceAtDecision)
	}
}

func TestDecideNonPendingIsNoOp(t *testing.T) {
	stub := newLifecycleStub()
	sig := pendingSignal(1)
	sig.Status = models.SignalRejected
	stub.signals[1] = sig
	engine := newTestEngine(stub)

	outcome, err := engine.Approve(context.Background(), 1, "late")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if outcome != DecisionNotPending {
		t.Fatalf("outcome = %s, want not_pending", outcome)
	}
	if stub.signals[1].Status != models.SignalRejected {
		t.Fatalf("terminal signal mutated to %s", stub.signals[1].Status)
	}
}

func TestDecideMissingSignal(t *testing.T) {
	engine := newTestEngine(newLifecycleStub())
	outcome, err := engine.Approve(context.Background(), 42, "ghost")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if outcome != DecisionNotFound {
		t.Fatalf("outcome = %s, want not_found", outcome)
	}
}

func TestExpirePendingTagsIgnored(t *testing.T) {
	stub := newLifecycleStub()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	expired := pendingSignal(1)
	expired.ExpiresAt = &past
	live := pendingSignal(2)
	live.ExpiresAt = &future
	stub.signals[1] = expired
	stub.signals[2] = live

	engine := newTestEngine(stub)
	n, err := engine.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if stub.signals[1].Status != models.SignalIgnored {
		t.Fatalf("expired signal status = %s, want IGNORED", stub.signals[1].Status)
	}
	if stub.signals[2].Status != models.SignalPending {
		t.Fatalf("live signal status = %s, want PENDING", stub.signals[2].Status)
	}
	if len(stub.whatIfs) != 1 || stub.whatIfs[0].Decision != WhatIfIgnored {
		t.Fatalf("expiry must record an ignored what-if, got %+v", stub.whatIfs)
	}
}

func TestSubmitSetsDeadline(t *testing.T) {
	stub := newLifecycleStub()
	engine := newTestEngine(stub)

	sig := &models.Signal{Action: models.ActionBuy, Symbol: "AAPL"}
	if err := engine.Submit(context.Background(), sig); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sig.Status != models.SignalPending {
		t.Fatalf("status = %s, want PENDING", sig.Status)
	}
	if sig.ExpiresAt == nil {
		t.Fatalf("submit must set the expiry deadline")
	}
	ttl := time.Until(*sig.ExpiresAt)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Fatalf("deadline %v from now, want ~24h", ttl)
	}
}

func TestReplayWhatIf(t *testing.T) {
	stub := newLifecycleStub()
	stub.whatIfs = []models.WhatIfEntry{
		{ID: 1, SignalID: 1, Decision: WhatIfRejected, Symbol: "AAPL", Action: models.ActionBuy, PriceAtDecision: decimal.NewFromInt(100)},
		{ID: 2, SignalID: 2, Decision: WhatIfIgnored, Symbol: "AAPL", Action: models.ActionSell, PriceAtDecision: decimal.NewFromInt(100)},
		{ID: 3, SignalID: 3, Decision: WhatIfIgnored, Symbol: "AAPL", Action: models.ActionBuy, PriceAtDecision: decimal.Zero},
	}
	engine := newTestEngine(stub)

	n, err := engine.ReplayWhatIf(context.Background(), repository.ListWhatIfParams{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 2 {
		t.Fatalf("replayed %d, want 2 (zero-price row skipped)", n)
	}
	// Price moved 100 -> 150: skipped buy missed +50, skipped sell saved -50.
	if stub.whatIfs[0].ReplayedPnL == nil || !stub.whatIfs[0].ReplayedPnL.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("buy counterfactual = %v, want 50", stub.whatIfs[0].ReplayedPnL)
	}
	if stub.whatIfs[1].ReplayedPnL == nil || !stub.whatIfs[1].ReplayedPnL.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("sell counterfactual = %v, want -50", stub.whatIfs[1].ReplayedPnL)
	}
	if stub.whatIfs[2].ReplayedPnL != nil {
		t.Fatalf("zero-price row must not be replayed")
	}
}

func TestBuildFundingPlan(t *testing.T) {
	stub := newLifecycleStub()
	stub.accounts[1] = &models.Account{ID: 1, Cash: decimal.NewFromInt(5_000)}
	stub.oldestLot = &models.TaxLot{
		ID: 7, AccountID: 1, Symbol: "MSFT",
		Shares:       decimal.NewFromInt(10),
		CostPerShare: decimal.NewFromInt(300),
		AcquiredAt:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	engine := newTestEngine(stub)

	// Cash covers it: no funding needed.
	plan, err := engine.BuildFundingPlan(context.Background(), 1, "AAPL", decimal.NewFromInt(4_000))
	if err != nil {
		t.Fatalf("funding plan: %v", err)
	}
	if plan.NeedsFunding {
		t.Fatalf("cash 5000 covers cost 4000, no funding needed")
	}

	// Shortfall: the oldest lot from another symbol covers it.
	plan, err = engine.BuildFundingPlan(context.Background(), 1, "AAPL", decimal.NewFromInt(8_000))
	if err != nil {
		t.Fatalf("funding plan: %v", err)
	}
	if !plan.NeedsFunding {
		t.Fatalf("cash 5000 under cost 8000 must need funding")
	}
	if !plan.Shortfall.Equal(decimal.NewFromInt(3_000)) {
		t.Fatalf("shortfall = %s, want 3000", plan.Shortfall)
	}
	if plan.SellLot == nil || plan.SellLot.Symbol != "MSFT" {
		t.Fatalf("plan must name the oldest other-symbol lot, got %+v", plan.SellLot)
	}
}
