package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradedesk/internal/config"
	"tradedesk/internal/lifecycle"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/risk"
)

// Generator scans theses for tradable candidates. Market-data failures
// degrade to neutral factors; a scan never aborts on a fetch error.
type Generator struct {
	Config   config.GeneratorConfig
	RiskCfg  config.RiskConfig
	Repo     repository.Repository
	Quotes   marketdata.QuoteProvider
	News     marketdata.NewsProvider
	PolTrade marketdata.PoliticianTradeProvider
	Gate     *risk.Gate
	Life     *lifecycle.Engine
	Logger   *zap.Logger
}

// candidate is a symbol/action pair under evaluation for one thesis.
type candidate struct {
	thesis     models.Thesis
	symbol     string
	action     string
	factors    Factors
	triggerHit bool
}

// Scan walks every non-archived thesis with symbols and emits passing
// signals. Returns the number of signals persisted.
func (g *Generator) Scan(ctx context.Context) (int, error) {
	excluded := models.ThesisArchived
	theses, err := g.Repo.ListTheses(ctx, repository.ListThesesParams{ExcludeStatus: &excluded})
	if err != nil {
		return 0, err
	}

	held, err := g.heldSymbols(ctx)
	if err != nil {
		return 0, err
	}
	pending, err := g.pendingSymbols(ctx)
	if err != nil {
		return 0, err
	}

	emitted := 0
	for _, th := range theses {
		symbols := thesisSymbols(th)
		if len(symbols) == 0 {
			continue
		}
		for _, symbol := range symbols {
			cand, ok := g.candidacy(th, symbol, held, pending)
			if !ok {
				continue
			}
			sig, err := g.evaluate(ctx, cand)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Warn("candidate evaluation failed",
						zap.String("symbol", symbol),
						zap.Uint64("thesis_id", th.ID),
						zap.Error(err),
					)
				}
				continue
			}
			if sig == nil {
				continue
			}
			if err := g.Life.Submit(ctx, sig); err != nil {
				return emitted, err
			}
			emitted++
		}
	}
	if g.Logger != nil {
		g.Logger.Info("thesis scan complete", zap.Int("theses", len(theses)), zap.Int("signals", emitted))
	}
	return emitted, nil
}

// candidacy decides whether the symbol is a BUY or SELL candidate for the
// thesis. Held symbols with a deteriorating thesis become exits; unheld
// symbols with a healthy thesis become entries. A symbol with a pending
// signal is skipped to avoid duplicates.
func (g *Generator) candidacy(th models.Thesis, symbol string, held map[string]string, pending map[string]bool) (candidate, bool) {
	if pending[symbol] {
		return candidate{}, false
	}
	side, isHeld := held[symbol]
	switch th.Status {
	case models.ThesisActive, models.ThesisStrengthening, models.ThesisConfirmed:
		if isHeld {
			return candidate{}, false
		}
		action := models.ActionBuy
		if th.Strategy == models.StrategyShort {
			action = models.ActionShort
		}
		return candidate{thesis: th, symbol: symbol, action: action}, true
	case models.ThesisWeakening, models.ThesisInvalidated:
		if !isHeld {
			return candidate{}, false
		}
		action := models.ActionSell
		if side == models.SideShort {
			action = models.ActionCover
		}
		return candidate{thesis: th, symbol: symbol, action: action}, true
	default:
		return candidate{}, false
	}
}

// evaluate runs the gates, the factor score and the risk check for one
// candidate. Returns nil when the candidate is blocked or below the
// confidence floor.
func (g *Generator) evaluate(ctx context.Context, cand candidate) (*models.Signal, error) {
	opening := cand.action == models.ActionBuy || cand.action == models.ActionShort

	if opening {
		if blocked, reason := g.entryGates(ctx, cand); blocked {
			if g.Logger != nil {
				g.Logger.Debug("entry blocked",
					zap.String("symbol", cand.symbol),
					zap.Uint64("thesis_id", cand.thesis.ID),
					zap.String("reason", reason),
				)
			}
			return nil, nil
		}
	}

	factors, reasoning := g.collectFactors(ctx, cand)

	raw := weightedScore(factors)
	if !opening {
		raw = sellUrgency(factors)
	}

	sector := g.sector(ctx, cand.symbol)
	confidence := g.Life.Score(ctx, raw, cand.thesis.Status, sector, cand.thesis.Source)
	if confidence < g.minConfidence() {
		return nil, nil
	}

	sizePct := clampSize(g.basePositionPct()*confidence*2, g.maxPositionPct())

	thesisID := cand.thesis.ID
	sig := &models.Signal{
		ThesisID:      &thesisID,
		Action:        cand.action,
		Symbol:        cand.symbol,
		Confidence:    confidence,
		RawConfidence: raw,
		SourceType:    models.SourceThesisScan,
		Status:        models.SignalPending,
		SizePct:       sizePct,
		Reasoning:     reasoning,
		Factors:       marshalFactors(factors),
	}

	result, err := g.Gate.PreTradeCheck(ctx, *sig)
	if err != nil {
		return nil, err
	}
	if !result.Passed {
		if g.Logger != nil {
			g.Logger.Info("candidate blocked by risk gate",
				zap.String("symbol", cand.symbol),
				zap.String("check", result.Check),
				zap.String("reason", result.Reason),
			)
		}
		return nil, nil
	}
	return sig, nil
}

// entryGates applies the ordered blocking gates for opening trades,
// short-circuiting on the first failure. Exits never pass through here.
func (g *Generator) entryGates(ctx context.Context, cand candidate) (bool, string) {
	th := cand.thesis

	if th.Conviction < g.minConviction() {
		return true, fmt.Sprintf("conviction %.2f below %.2f", th.Conviction, g.minConviction())
	}

	minAge := time.Duration(g.minThesisAgeDays()) * 24 * time.Hour
	if time.Since(th.CreatedAt) < minAge {
		return true, fmt.Sprintf("thesis younger than %d days", g.minThesisAgeDays())
	}

	revisions, err := g.Repo.CountThesisVersions(ctx, th.ID)
	if err != nil {
		return true, "revision count unavailable"
	}
	if revisions < int64(g.minResearchUpdates()) {
		return true, fmt.Sprintf("only %d research revisions, need %d", revisions, g.minResearchUpdates())
	}

	if g.earningsSoon(ctx, cand.symbol) {
		return true, fmt.Sprintf("earnings within %d days", g.earningsBlockDays())
	}

	if blocked, err := g.inBlackout(ctx, cand.symbol); err != nil {
		return true, "trading window lookup failed"
	} else if blocked {
		return true, "symbol in trading blackout window"
	}
	return false, ""
}

func (g *Generator) earningsSoon(ctx context.Context, symbol string) bool {
	if g.Quotes == nil {
		return false
	}
	fund, err := g.Quotes.GetFundamentals(ctx, symbol)
	if err != nil || fund == nil || fund.NextEarnings == nil {
		return false
	}
	until := time.Until(*fund.NextEarnings)
	return until >= 0 && until <= time.Duration(g.earningsBlockDays())*24*time.Hour
}

// inBlackout reports a blackout when windows are configured for the symbol
// and now falls outside all of them. No windows means no restriction.
func (g *Generator) inBlackout(ctx context.Context, symbol string) (bool, error) {
	windows, err := g.Repo.ListTradingWindows(ctx, symbol)
	if err != nil {
		return false, err
	}
	if len(windows) == 0 {
		return false, nil
	}
	now := time.Now().UTC()
	for _, w := range windows {
		if w.Contains(now) {
			return false, nil
		}
	}
	return true, nil
}

// collectFactors gathers the six scoring inputs, degrading each to its
// neutral default on fetch failure.
func (g *Generator) collectFactors(ctx context.Context, cand candidate) (Factors, string) {
	f := Factors{
		Conviction:  cand.thesis.Conviction,
		News:        0.5,
		Calibration: 0.5,
		Politician:  0.5,
	}
	f.Critic = criticAssessment[cand.thesis.Status]

	var quote *marketdata.Quote
	var history []marketdata.Bar
	if g.Quotes != nil {
		var err error
		if quote, err = g.Quotes.GetQuote(ctx, cand.symbol); err != nil && g.Logger != nil {
			g.Logger.Debug("quote unavailable", zap.String("symbol", cand.symbol), zap.Error(err))
		}
		if history, err = g.Quotes.GetHistory(ctx, cand.symbol, 30); err != nil && g.Logger != nil {
			g.Logger.Debug("history unavailable", zap.String("symbol", cand.symbol), zap.Error(err))
		}
	}
	f.TriggerHit, f.TriggerMag = priceTrigger(quote, history, g.dailyTriggerPct(), g.fiveDayTriggerPct())

	if g.News != nil {
		since := time.Now().UTC().AddDate(0, 0, -g.newsLookbackDays())
		criteria := thesisCriteria(cand.thesis)
		if headlines, err := g.News.GetNews(ctx, criteria, since); err == nil {
			f.News = newsSentiment(headlines)
		}
	}

	if stats, err := g.Repo.GetSourceStats(ctx, cand.thesis.Source); err == nil && stats != nil {
		f.Calibration = stats.WinRate()
	}

	if g.PolTrade != nil {
		since := time.Now().UTC().AddDate(0, 0, -g.polTradeDays())
		if trades, err := g.PolTrade.GetPoliticianTrades(ctx, cand.symbol, since); err == nil {
			f.Politician = politicianAlignment(trades, cand.action)
		}
	}

	reasoning := fmt.Sprintf("%s %s on thesis %q (%s): trigger=%v conviction=%.2f critic=%.2f news=%.2f",
		cand.action, cand.symbol, cand.thesis.Title, cand.thesis.Status,
		f.TriggerHit, f.Conviction, f.Critic, f.News)
	return f, reasoning
}

func (g *Generator) sector(ctx context.Context, symbol string) string {
	if g.Quotes == nil {
		return ""
	}
	fund, err := g.Quotes.GetFundamentals(ctx, symbol)
	if err != nil || fund == nil {
		return ""
	}
	return fund.Sector
}

// heldSymbols maps each open symbol to its side.
func (g *Generator) heldSymbols(ctx context.Context) (map[string]string, error) {
	positions, err := g.Repo.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]string, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p.Side
	}
	return held, nil
}

func (g *Generator) pendingSymbols(ctx context.Context) (map[string]bool, error) {
	status := models.SignalPending
	signals, err := g.Repo.ListSignals(ctx, repository.ListSignalsParams{Status: &status})
	if err != nil {
		return nil, err
	}
	pending := make(map[string]bool, len(signals))
	for _, s := range signals {
		pending[s.Symbol] = true
	}
	return pending, nil
}

func thesisSymbols(th models.Thesis) []string {
	if len(th.Symbols) == 0 {
		return nil
	}
	var symbols []string
	if err := json.Unmarshal(th.Symbols, &symbols); err != nil {
		return nil
	}
	return symbols
}

// thesisCriteria merges validation and failure criteria for the news query.
func thesisCriteria(th models.Thesis) []string {
	var criteria []string
	var validation, failure []string
	if len(th.ValidationCriteria) > 0 {
		if err := json.Unmarshal(th.ValidationCriteria, &validation); err == nil {
			criteria = append(criteria, validation...)
		}
	}
	if len(th.FailureCriteria) > 0 {
		if err := json.Unmarshal(th.FailureCriteria, &failure); err == nil {
			criteria = append(criteria, failure...)
		}
	}
	return criteria
}

func marshalFactors(f Factors) []byte {
	raw, _ := json.Marshal(map[string]any{
		"conviction":  f.Conviction,
		"trigger_hit": f.TriggerHit,
		"trigger_mag": f.TriggerMag,
		"news":        f.News,
		"critic":      f.Critic,
		"calibration": f.Calibration,
		"politician":  f.Politician,
	})
	return raw
}

func clampSize(size, max float64) float64 {
	if size > max {
		return max
	}
	if size < 0 {
		return 0
	}
	return size
}

func (g *Generator) dailyTriggerPct() float64 {
	if g.Config.DailyMoveTriggerPct <= 0 {
		return 2.0
	}
	return g.Config.DailyMoveTriggerPct
}

func (g *Generator) fiveDayTriggerPct() float64 {
	if g.Config.FiveDayMoveTriggerPct <= 0 {
		return 5.0
	}
	return g.Config.FiveDayMoveTriggerPct
}

func (g *Generator) minConviction() float64 {
	if g.Config.MinConviction <= 0 {
		return 0.70
	}
	return g.Config.MinConviction
}

func (g *Generator) minThesisAgeDays() int {
	if g.Config.MinThesisAgeDays <= 0 {
		return 7
	}
	return g.Config.MinThesisAgeDays
}

func (g *Generator) minResearchUpdates() int {
	if g.Config.MinResearchUpdates <= 0 {
		return 2
	}
	return g.Config.MinResearchUpdates
}

func (g *Generator) earningsBlockDays() int {
	if g.Config.EarningsBlockDays <= 0 {
		return 5
	}
	return g.Config.EarningsBlockDays
}

func (g *Generator) basePositionPct() float64 {
	if g.Config.BasePositionPct <= 0 {
		return 0.02
	}
	return g.Config.BasePositionPct
}

func (g *Generator) minConfidence() float64 {
	if g.Config.MinConfidence <= 0 {
		return 0.30
	}
	return g.Config.MinConfidence
}

func (g *Generator) newsLookbackDays() int {
	if g.Config.NewsLookbackDays <= 0 {
		return 7
	}
	return g.Config.NewsLookbackDays
}

func (g *Generator) polTradeDays() int {
	if g.Config.PolTradeDays <= 0 {
		return 90
	}
	return g.Config.PolTradeDays
}

func (g *Generator) maxPositionPct() float64 {
	if g.RiskCfg.MaxPositionPct <= 0 {
		return 0.15
	}
	return g.RiskCfg.MaxPositionPct
}
