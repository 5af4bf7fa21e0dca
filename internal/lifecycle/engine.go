package lifecycle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/audit"
	"tradedesk/internal/config"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// DecisionOutcome is the tagged result of a decision attempt. Deciding a
// signal that is missing or already decided is an expected no-op the caller
// inspects, not an error.
type DecisionOutcome int

const (
	DecisionApplied DecisionOutcome = iota
	DecisionNotFound
	DecisionNotPending
)

func (o DecisionOutcome) String() string {
	switch o {
	case DecisionApplied:
		return "applied"
	case DecisionNotFound:
		return "not_found"
	case DecisionNotPending:
		return "not_pending"
	default:
		return "unknown"
	}
}

// What-if decision tags. Rejection is active disagreement; expiry is
// non-engagement. The distinction feeds later calibration.
const (
	WhatIfRejected = "rejected"
	WhatIfIgnored  = "ignored"
)

// Engine owns the signal lifecycle: scoring on intake, the
// PENDING -> decision -> EXECUTED state machine, auto-expiry, and
// counterfactual recording.
type Engine struct {
	Config config.Config
	Repo   repository.Repository
	Quotes marketdata.QuoteProvider
	Logger *zap.Logger
	Audit  *audit.Recorder
}

// Score runs the confidence pipeline for a candidate before it is persisted.
func (e *Engine) Score(ctx context.Context, raw float64, thesisStatus, domain, sourceType string) float64 {
	in := loadScoreInput(ctx, e.Repo, raw, thesisStatus, domain, sourceType)
	return ScoreConfidence(e.Config.Scoring, in)
}

// Submit persists a new PENDING signal with its expiry deadline.
func (e *Engine) Submit(ctx context.Context, sig *models.Signal) error {
	if sig.Status == "" {
		sig.Status = models.SignalPending
	}
	if sig.ExpiresAt == nil {
		deadline := time.Now().UTC().Add(e.pendingTTL())
		sig.ExpiresAt = &deadline
	}
	if err := e.Repo.InsertSignal(ctx, sig); err != nil {
		return err
	}
	if e.Logger != nil {
		e.Logger.Info("signal submitted",
			zap.Uint64("signal_id", sig.ID),
			zap.String("symbol", sig.Symbol),
			zap.String("action", sig.Action),
			zap.Float64("confidence", sig.Confidence),
		)
	}
	return nil
}

// Approve flips PENDING to APPROVED.
func (e *Engine) Approve(ctx context.Context, id uint64, reason string) (DecisionOutcome, error) {
	return e.decide(ctx, id, models.SignalApproved, reason, "")
}

// Reject flips PENDING to REJECTED and records a rejected what-if entry.
func (e *Engine) Reject(ctx context.Context, id uint64, reason string) (DecisionOutcome, error) {
	return e.decide(ctx, id, models.SignalRejected, reason, WhatIfRejected)
}

// Ignore flips PENDING to IGNORED and records an ignored what-if entry.
func (e *Engine) Ignore(ctx context.Context, id uint64, reason string) (DecisionOutcome, error) {
	return e.decide(ctx, id, models.SignalIgnored, reason, WhatIfIgnored)
}

// Cancel flips PENDING to CANCELLED. Cancellation is only possible before
// execution; a confirmed fill is final.
func (e *Engine) Cancel(ctx context.Context, id uint64, reason string) (DecisionOutcome, error) {
	return e.decide(ctx, id, models.SignalCancelled, reason, "")
}

func (e *Engine) decide(ctx context.Context, id uint64, toStatus, reason, whatIf string) (DecisionOutcome, error) {
	sig, err := e.Repo.GetSignalByID(ctx, id)
	if err != nil {
		return DecisionNotFound, err
	}
	if sig == nil {
		return DecisionNotFound, nil
	}
	if sig.Status != models.SignalPending {
		return DecisionNotPending, nil
	}

	now := time.Now().UTC()
	affected, err := e.Repo.DecideSignal(ctx, id, models.SignalPending, toStatus, reason, now)
	if err != nil {
		return DecisionNotPending, err
	}
	if affected == 0 {
		// Lost the race to a concurrent decision.
		return DecisionNotPending, nil
	}

	if whatIf != "" {
		e.recordWhatIf(ctx, sig, whatIf)
	}
	if e.Audit != nil {
		e.Audit.Record(ctx, "lifecycle", "signal_"+toStatus, "signal", id, map[string]any{
			"symbol": sig.Symbol,
			"action": sig.Action,
			"reason": reason,
		})
	}
	if e.Logger != nil {
		e.Logger.Info("signal decided",
			zap.Uint64("signal_id", id),
			zap.String("status", toStatus),
			zap.String("reason", reason),
		)
	}
	return DecisionApplied, nil
}

// ExpirePending sweeps PENDING signals past their deadline into IGNORED,
// recording each as a non-engagement counterfactual.
func (e *Engine) ExpirePending(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	signals, err := e.Repo.ListExpiredPendingSignals(ctx, now, 200)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sig := range signals {
		affected, err := e.Repo.DecideSignal(ctx, sig.ID, models.SignalPending, models.SignalIgnored, "expired without decision", now)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("signal expiry failed", zap.Uint64("signal_id", sig.ID), zap.Error(err))
			}
			continue
		}
		if affected == 0 {
			continue
		}
		e.recordWhatIf(ctx, &sig, WhatIfIgnored)
		expired++
	}
	if expired > 0 && e.Logger != nil {
		e.Logger.Info("pending signals expired", zap.Int("count", expired))
	}
	return expired, nil
}

// recordWhatIf captures the price at decision time for later replay. A
// missing quote records a zero price; replay skips those rows.
func (e *Engine) recordWhatIf(ctx context.Context, sig *models.Signal, decision string) {
	price := decimal.Zero
	if e.Quotes != nil {
		if quote, err := e.Quotes.GetQuote(ctx, sig.Symbol); err == nil && quote != nil {
			price = quote.Price
		} else if e.Logger != nil {
			e.Logger.Warn("what-if quote unavailable", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
	}
	entry := &models.WhatIfEntry{
		SignalID:        sig.ID,
		Decision:        decision,
		Symbol:          sig.Symbol,
		Action:          sig.Action,
		PriceAtDecision: price,
	}
	if err := e.Repo.InsertWhatIfEntry(ctx, entry); err != nil && e.Logger != nil {
		e.Logger.Warn("what-if insert failed", zap.Uint64("signal_id", sig.ID), zap.Error(err))
	}
}

// ReplayWhatIf computes the counterfactual P&L for recorded entries against
// current quotes: what the suggested trade would have made had it been taken.
func (e *Engine) ReplayWhatIf(ctx context.Context, params repository.ListWhatIfParams) (int, error) {
	if e.Quotes == nil {
		return 0, nil
	}
	entries, err := e.Repo.ListWhatIfEntries(ctx, params)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	replayed := 0
	for _, entry := range entries {
		if entry.PriceAtDecision.LessThanOrEqual(decimal.Zero) {
			continue
		}
		quote, err := e.Quotes.GetQuote(ctx, entry.Symbol)
		if err != nil || quote == nil {
			continue
		}
		pnl := counterfactualPnL(entry.Action, entry.PriceAtDecision, quote.Price)
		if err := e.Repo.UpdateWhatIfReplay(ctx, entry.ID, pnl, now); err != nil {
			if e.Logger != nil {
				e.Logger.Warn("what-if replay update failed", zap.Uint64("entry_id", entry.ID), zap.Error(err))
			}
			continue
		}
		replayed++
	}
	return replayed, nil
}

// counterfactualPnL is the per-share move in the trade's direction.
func counterfactualPnL(action string, decisionPrice, currentPrice decimal.Decimal) decimal.Decimal {
	move := currentPrice.Sub(decisionPrice)
	switch action {
	case models.ActionSell, models.ActionShort:
		return move.Neg()
	default:
		return move
	}
}

func (e *Engine) pendingTTL() time.Duration {
	if e.Config.Lifecycle.PendingTTL <= 0 {
		return 24 * time.Hour
	}
	return e.Config.Lifecycle.PendingTTL
}
