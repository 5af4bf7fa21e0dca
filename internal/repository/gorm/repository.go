package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// tx falls back to the store handle so Tx methods also work standalone.
func (s *Store) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// --- Accounts ---------------------------------------------------------------

func (s *Store) UpsertAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetAccountByID(ctx context.Context, id uint64) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).First(&item, "name = ?", strings.TrimSpace(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Account
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) AdjustAccountCashTx(ctx context.Context, tx *gorm.DB, accountID uint64, delta decimal.Decimal) error {
	if s == nil || s.db == nil || accountID == 0 {
		return nil
	}
	return s.tx(tx).WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("cash", gorm.Expr("cash + ?", delta)).Error
}

// --- Theses -----------------------------------------------------------------

func (s *Store) InsertThesis(ctx context.Context, item *models.Thesis) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetThesisByID(ctx context.Context, id uint64) (*models.Thesis, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Thesis
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateThesisFields(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || id == 0 || len(updates) == 0 {
		return nil
	}
	// Status changes must go through the state machine's transaction.
	delete(updates, "status")
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.Thesis{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) UpdateThesisStatusTx(ctx context.Context, tx *gorm.DB, id uint64, status string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.tx(tx).WithContext(ctx).
		Model(&models.Thesis{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (s *Store) ListTheses(ctx context.Context, params repository.ListThesesParams) ([]models.Thesis, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Thesis{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.ExcludeStatus != nil && strings.TrimSpace(*params.ExcludeStatus) != "" {
		query = query.Where("status <> ?", strings.TrimSpace(*params.ExcludeStatus))
	}
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Thesis
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertThesisVersionTx(ctx context.Context, tx *gorm.DB, item *models.ThesisVersion) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) ListThesisVersions(ctx context.Context, thesisID uint64) ([]models.ThesisVersion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ThesisVersion
	if err := s.db.WithContext(ctx).
		Where("thesis_id = ?", thesisID).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountThesisVersions(ctx context.Context, thesisID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ThesisVersion{}).
		Where("thesis_id = ?", thesisID).
		Count(&count).Error
	return count, err
}

// --- Signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.ThesisID != nil && *params.ThesisID != 0 {
		query = query.Where("thesis_id = ?", *params.ThesisID)
	}
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DecideSignal(ctx context.Context, id uint64, fromStatus, toStatus, reason string, decidedAt time.Time) (int64, error) {
	if s == nil || s.db == nil || id == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]any{
			"status":          toStatus,
			"decision_reason": reason,
			"decided_at":      decidedAt,
		})
	return res.RowsAffected, res.Error
}

func (s *Store) MarkSignalExecuted(ctx context.Context, id uint64, orderID string, executedAt time.Time) (int64, error) {
	if s == nil || s.db == nil || id == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.SignalApproved).
		Updates(map[string]any{
			"status":      models.SignalExecuted,
			"order_id":    orderID,
			"executed_at": executedAt,
		})
	return res.RowsAffected, res.Error
}

func (s *Store) SetSignalOrderID(ctx context.Context, id uint64, orderID string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", id).
		Update("order_id", orderID).Error
}

func (s *Store) ListExpiredPendingSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.Signal
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SignalPending).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- What-if ----------------------------------------------------------------

func (s *Store) InsertWhatIfEntry(ctx context.Context, item *models.WhatIfEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetWhatIfBySignalID(ctx context.Context, signalID uint64) (*models.WhatIfEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.WhatIfEntry
	err := s.db.WithContext(ctx).First(&item, "signal_id = ?", signalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateWhatIfReplay(ctx context.Context, id uint64, pnl decimal.Decimal, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.WhatIfEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{"replayed_pnl": pnl, "replayed_at": at}).Error
}

func (s *Store) ListWhatIfEntries(ctx context.Context, params repository.ListWhatIfParams) ([]models.WhatIfEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.WhatIfEntry{})
	if params.Decision != nil && strings.TrimSpace(*params.Decision) != "" {
		query = query.Where("decision = ?", strings.TrimSpace(*params.Decision))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	var items []models.WhatIfEntry
	if err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Positions --------------------------------------------------------------

func (s *Store) GetPosition(ctx context.Context, accountID uint64, symbol string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		First(&item, "account_id = ? AND symbol = ?", accountID, strings.TrimSpace(symbol)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPositionTx(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.tx(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "account_id = ? AND symbol = ?", accountID, strings.TrimSpace(symbol)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if params.AccountID != nil && *params.AccountID != 0 {
		query = query.Where("account_id = ?", *params.AccountID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("side = ?", strings.TrimSpace(*params.Side))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "opened_at")
	var items []models.Position
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Where("shares > 0").
		Order("symbol asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertPositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shares",
			"avg_cost",
			"side",
			"thesis_id",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeletePositionTx(ctx context.Context, tx *gorm.DB, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Delete(&models.Position{}, "id = ?", id).Error
}

// --- Tax lots ---------------------------------------------------------------

func (s *Store) InsertTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) SaveTaxLotTx(ctx context.Context, tx *gorm.DB, item *models.TaxLot) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Save(item).Error
}

func (s *Store) GetTaxLotByID(ctx context.Context, id uint64) (*models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TaxLot
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenLots(ctx context.Context, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	direction := "desc"
	if asc {
		direction = "asc"
	}
	var items []models.TaxLot
	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ?", accountID, strings.TrimSpace(symbol)).
		Where("sold_at IS NULL AND shares > 0").
		Order("acquired_at " + direction).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenLotsTx(ctx context.Context, tx *gorm.DB, accountID uint64, symbol string, asc bool) ([]models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	direction := "desc"
	if asc {
		direction = "asc"
	}
	var items []models.TaxLot
	if err := s.tx(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND symbol = ?", accountID, strings.TrimSpace(symbol)).
		Where("sold_at IS NULL AND shares > 0").
		Order("acquired_at " + direction).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenLotsBySymbol(ctx context.Context, symbol string) ([]models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TaxLot
	if err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Where("sold_at IS NULL AND shares > 0").
		Order("acquired_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenLotsByAccount(ctx context.Context, accountID uint64) ([]models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TaxLot
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("sold_at IS NULL AND shares > 0").
		Order("symbol asc, acquired_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListLotsAcquiredBetween(ctx context.Context, symbol string, from, to time.Time) ([]models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TaxLot
	if err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Where("acquired_at >= ? AND acquired_at <= ?", from, to).
		Order("acquired_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) OldestOpenLotExcluding(ctx context.Context, accountID uint64, excludeSymbol string) (*models.TaxLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TaxLot
	query := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("sold_at IS NULL AND shares > 0")
	if strings.TrimSpace(excludeSymbol) != "" {
		query = query.Where("symbol <> ?", strings.TrimSpace(excludeSymbol))
	}
	err := query.Order("acquired_at asc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) MarkLotsWashSaleTx(ctx context.Context, tx *gorm.DB, ids []uint64) error {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil
	}
	return s.tx(tx).WithContext(ctx).
		Model(&models.TaxLot{}).
		Where("id IN ?", ids).
		Update("wash_sale", true).Error
}

// --- Wash-sale watchlist ----------------------------------------------------

func (s *Store) InsertWashSaleEntryTx(ctx context.Context, tx *gorm.DB, item *models.WashSaleEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) ListActiveWashSaleEntries(ctx context.Context, symbol string, at time.Time) ([]models.WashSaleEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var items []models.WashSaleEntry
	if err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Where("expires_at >= ?", at).
		Order("sold_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Risk limits & kill switch ----------------------------------------------

func (s *Store) UpsertRiskLimit(ctx context.Context, item *models.RiskLimit) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "enabled", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetRiskLimitByName(ctx context.Context, name string) (*models.RiskLimit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.RiskLimit
	err := s.db.WithContext(ctx).First(&item, "name = ?", strings.TrimSpace(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRiskLimits(ctx context.Context) ([]models.RiskLimit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.RiskLimit
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertKillSwitchEvent(ctx context.Context, item *models.KillSwitchEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestKillSwitchEvent(ctx context.Context) (*models.KillSwitchEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.KillSwitchEvent
	err := s.db.WithContext(ctx).Order("id desc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Trades & snapshots -----------------------------------------------------

func (s *Store) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.tx(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.AccountID != nil && *params.AccountID != 0 {
		query = query.Where("account_id = ?", *params.AccountID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("filled_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "filled_at")
	var items []models.Trade
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumRealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var raw *string
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("SUM(realized_pnl)::text").
		Where("filled_at >= ?", since).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(*raw))
}

func (s *Store) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "snapshot_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cash", "long_value", "short_value", "nav", "realized_pnl", "unrealized_pnl",
		}),
	}).Create(item).Error
}

func (s *Store) LatestPortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PortfolioSnapshot
	err := s.db.WithContext(ctx).Order("snapshot_at desc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) HighWaterNAV(ctx context.Context) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var raw *string
	err := s.db.WithContext(ctx).
		Model(&models.PortfolioSnapshot{}).
		Select("MAX(nav)::text").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(*raw))
}

func (s *Store) FirstSnapshotOnOrAfter(ctx context.Context, t time.Time) (*models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PortfolioSnapshot
	err := s.db.WithContext(ctx).
		Where("snapshot_at >= ?", t).
		Order("snapshot_at asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Scoring support --------------------------------------------------------

func (s *Store) ListEnabledPrinciples(ctx context.Context) ([]models.Principle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Principle
	if err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertPrinciple(ctx context.Context, item *models.Principle) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"weight", "domain", "validated_count", "invalidated_count", "enabled", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSourceStats(ctx context.Context, sourceType string) (*models.SourceStats, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SourceStats
	err := s.db.WithContext(ctx).First(&item, "source_type = ?", strings.TrimSpace(sourceType)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) RecordSourceOutcome(ctx context.Context, sourceType string, win bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return nil
	}
	column := "losses"
	if win {
		column = "wins"
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_type"}},
		DoUpdates: clause.Assignments(map[string]any{column: gorm.Expr(column+" + 1"), "updated_at": time.Now().UTC()}),
	}).Create(&models.SourceStats{
		SourceType: sourceType,
		Wins:       boolToInt(win),
		Losses:     boolToInt(!win),
	}).Error
}

// --- Trading windows --------------------------------------------------------

func (s *Store) ListTradingWindows(ctx context.Context, symbol string) ([]models.TradingWindow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradingWindow
	if err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Order("start_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Audit ------------------------------------------------------------------

func (s *Store) InsertAuditEntry(ctx context.Context, item *models.AuditEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
