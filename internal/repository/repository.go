package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradedesk/internal/models"
)

// Repository is the single store surface shared by every engine. Methods with
// a Tx suffix participate in a caller-owned transaction opened via InTx; all
// multi-row mutations (lot consumption + position + cash + trade) must run
// inside one InTx call.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Accounts
	UpsertAccount(ctx context.Context, item *models.Account) error
	GetAccountByID(ctx context.Context, id uint64) (*models.Account, error)
	GetAccountByName(ctx context.Context, name string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	AdjustAccountCashTx(ctx context.Context, tx *gorm.DB, accountID uint64, delta decimal.Decimal) error

	// Theses
	InsertThesis(ctx context.Context, item *models.Thesis) error
	GetThesisByID(ctx context.Context, id uint64) (*models.Thesis, error)
	UpdateThesisFields(ctx context.Context, id uint64, updates map[string]any) error
	UpdateThesisStatusTx(ctx context.Context, tx *gorm.DB, id uint64, status string) error
	ListTheses(ctx context.Context, params ListThesesParams) ([]models.Thesis, error)
	InsertThesisVersionTx(ctx context.Context, tx *gorm.DB, item *models.ThesisVersion) error
	ListThesisVersions(ctx context.Context, thesisID uint64) ([]models.ThesisVersion, error)
	CountThesisVersions(ctx context.Context, thesisID uint64) (int64, error)

	// Signals
	InsertSignal(ctx context.Context, item *models.Signal) error
	GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	// DecideSignal flips status only when the row still holds fromStatus and
	// reports the number of rows changed, so two concurrent decisions cannot
	// both apply.
	DecideSignal(ctx context.Context, id uint64, fromStatus, toStatus, reason string, decidedAt time.Time) (int64, error)
	MarkSignalExecuted(ctx context.Context, id uint64, orderID string, executedAt time.Time) (int64, error)
	// SetSignalOrderID records the client order id before the order is
	// placed; a retried execution reuses it instead of placing a new order.
	SetSignalOrderID(ctx context.Context, id uint64, orderID string) error
	ListExpiredPendingSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error)

	// What-if counterfactuals
	InsertWhatIfEntry(ctx context.Context, item *models.WhatIfEntry) error
	GetWhatIfBySignalID(ctx context.Context, signalID uint64) (*models.WhatIfEntry, error)
	UpdateWhatIfReplay(ctx context.Context, id uint64, pnl decimal.Decimal, at time.Time) error
	ListWhatIfEntries(ctx context.Context, params ListWhatIfParams) ([]models.WhatIfEntry, error)

	// Positions
	GetPosition(ctx context.Context, accountID uint64, symbol string) (*models.Position, error)
	// GetPositionTx reads the row FOR UPDATE inside the given transaction.
	GetPositionTx(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	ListPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error)
	UpsertPositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error
	DeletePositionTx(ctx context.Context, tx *gorm.DB, id uint64) error

	// Tax lots
	InsertTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error
	SaveTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error
	GetTaxLotByID(ctx context.Context, id uint64) (*models.TaxLot, error)
	// ListOpenLots orders by acquisition date; asc selects FIFO, desc LIFO.
	ListOpenLots(ctx context.Context, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error)
	// ListOpenLotsTx is ListOpenLots with the rows locked FOR UPDATE inside
	// the given transaction, so two concurrent sells cannot plan against the
	// same open shares.
	ListOpenLotsTx(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error)
	ListOpenLotsBySymbol(ctx context.Context, symbol string) ([]models.TaxLot, error)
	ListOpenLotsByAccount(ctx context.Context, accountID uint64) ([]models.TaxLot, error)
	ListLotsAcquiredBetween(ctx context.Context, symbol string, from, to time.Time) ([]models.TaxLot, error)
	OldestOpenLotExcluding(ctx context.Context, accountID uint64, excludeSymbol string) (*models.TaxLot, error)
	MarkLotsWashSaleTx(ctx context.Context, tx *gorm.DB, ids []uint64) error

	// Wash-sale watchlist
	InsertWashSaleEntryTx(ctx context.Context, tx *gorm.DB, item *models.WashSaleEntry) error
	ListActiveWashSaleEntries(ctx context.Context, symbol string, at time.Time) ([]models.WashSaleEntry, error)

	// Risk limits & kill switch
	UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error
	GetRiskLimitByName(ctx context.Context, name string) (*models.RiskLimit, error)
	ListRiskLimits(ctx context.Context) ([]models.RiskLimit, error)
	InsertKillSwitchEvent(ctx context.Context, item *models.KillSwitchEvent) error
	LatestKillSwitchEvent(ctx context.Context) (*models.KillSwitchEvent, error)

	// Trades & snapshots
	InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	SumRealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	LatestPortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error)
	HighWaterNAV(ctx context.Context) (decimal.Decimal, error)
	FirstSnapshotOnOrAfter(ctx context.Context, t time.Time) (*models.PortfolioSnapshot, error)

	// Scoring support
	ListEnabledPrinciples(ctx context.Context) ([]models.Principle, error)
	UpsertPrinciple(ctx context.Context, item *models.Principle) error
	GetSourceStats(ctx context.Context, sourceType string) (*models.SourceStats, error)
	RecordSourceOutcome(ctx context.Context, sourceType string, win bool) error

	// Trading windows
	ListTradingWindows(ctx context.Context, symbol string) ([]models.TradingWindow, error)

	// Audit
	InsertAuditEntry(ctx context.Context, item *models.AuditEntry) error
}

type ListThesesParams struct {
	Limit         int
	Offset        int
	Status        *string
	ExcludeStatus *string
	Source        *string
	OrderBy       string
	Asc           *bool
}

type ListSignalsParams struct {
	Limit    int
	Offset   int
	Status   *string
	Symbol   *string
	ThesisID *uint64
	Action   *string
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListPositionsParams struct {
	Limit     int
	Offset    int
	AccountID *uint64
	Symbol    *string
	Side      *string
	OrderBy   string
	Asc       *bool
}

type ListTradesParams struct {
	Limit     int
	Offset    int
	AccountID *uint64
	Symbol    *string
	Action    *string
	Since     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListWhatIfParams struct {
	Limit    int
	Offset   int
	Decision *string
	Symbol   *string
	Since    *time.Time
}
