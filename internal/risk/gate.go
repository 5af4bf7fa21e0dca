package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/audit"
	"tradedesk/internal/config"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// Check names, in evaluation order. The gate returns the first failure.
const (
	CheckKillSwitch    = "kill_switch"
	CheckPositionSize  = "position_size"
	CheckSector        = "sector_concentration"
	CheckGrossExposure = "gross_exposure"
	CheckNetExposure   = "net_exposure"
	CheckTradingWindow = "trading_window"
	CheckDrawdown      = "drawdown"
	CheckDailyLoss     = "daily_loss"
)

type CheckResult struct {
	Passed bool
	Check  string
	Reason string
}

func pass() CheckResult {
	return CheckResult{Passed: true}
}

func fail(check, reason string) CheckResult {
	return CheckResult{Passed: false, Check: check, Reason: reason}
}

// Gate answers pass/fail for a proposed signal. Checks run in a fixed order,
// cheapest and most severe first, and stop at the first failure.
type Gate struct {
	Config config.RiskConfig
	Repo   repository.Repository
	Switch *KillSwitch
	Logger *zap.Logger
	Audit  *audit.Recorder
}

// checkInput carries everything the pure check chain needs, so the chain is
// testable without a store.
type checkInput struct {
	KillSwitchActive bool
	KillSwitchReason string

	Exposure ExposureSnapshot
	Windows  []models.TradingWindow

	HighWaterNAV decimal.Decimal
	DayStartNAV  decimal.Decimal
	Now          time.Time

	MaxPositionPct   float64
	MaxGrossExposure float64
	NetExposureMin   float64
	NetExposureMax   float64
	MaxDrawdown      float64
	DailyLossLimit   float64
}

// PreTradeCheck assembles the inputs as-of now and runs the chain. Any
// failure is audited before being returned.
func (g *Gate) PreTradeCheck(ctx context.Context, sig models.Signal) (CheckResult, error) {
	if g == nil || g.Repo == nil {
		return pass(), nil
	}
	in, err := g.buildInput(ctx, sig)
	if err != nil {
		return fail(CheckKillSwitch, "risk inputs unavailable"), err
	}
	result := runChecks(in, sig)
	if !result.Passed {
		g.Audit.Record(ctx, "risk_gate", "pre_trade_block", "signal", sig.ID, map[string]any{
			"check":  result.Check,
			"reason": result.Reason,
			"symbol": sig.Symbol,
			"action": sig.Action,
		})
		if g.Logger != nil {
			g.Logger.Info("risk: signal blocked",
				zap.Uint64("signal_id", sig.ID),
				zap.String("symbol", sig.Symbol),
				zap.String("check", result.Check),
				zap.String("reason", result.Reason),
			)
		}
	}
	return result, nil
}

func (g *Gate) buildInput(ctx context.Context, sig models.Signal) (checkInput, error) {
	in := checkInput{
		Now:              time.Now().UTC(),
		MaxPositionPct:   g.limit(ctx, models.LimitMaxPositionPct, g.Config.MaxPositionPct),
		MaxGrossExposure: g.limit(ctx, models.LimitMaxGrossExposure, g.Config.MaxGrossExposure),
		NetExposureMin:   g.limit(ctx, models.LimitNetExposureMin, g.Config.NetExposureMin),
		NetExposureMax:   g.limit(ctx, models.LimitNetExposureMax, g.Config.NetExposureMax),
		MaxDrawdown:      g.limit(ctx, models.LimitMaxDrawdown, g.Config.MaxDrawdown),
		DailyLossLimit:   g.limit(ctx, models.LimitDailyLoss, g.Config.DailyLossLimit),
	}

	active, reason, err := g.Switch.IsActive(ctx)
	if err != nil {
		return in, err
	}
	in.KillSwitchActive = active
	in.KillSwitchReason = reason

	exp, err := g.Exposure(ctx)
	if err != nil {
		return in, err
	}
	in.Exposure = exp

	windows, err := g.Repo.ListTradingWindows(ctx, sig.Symbol)
	if err != nil {
		return in, err
	}
	in.Windows = windows

	high, err := g.Repo.HighWaterNAV(ctx)
	if err != nil {
		return in, err
	}
	in.HighWaterNAV = high

	dayStart := time.Date(in.Now.Year(), in.Now.Month(), in.Now.Day(), 0, 0, 0, 0, time.UTC)
	snap, err := g.Repo.FirstSnapshotOnOrAfter(ctx, dayStart)
	if err != nil {
		return in, err
	}
	if snap != nil {
		in.DayStartNAV = snap.NAV
	}
	return in, nil
}

// limit reads an enabled override row, falling back to the config default.
func (g *Gate) limit(ctx context.Context, name string, fallback float64) float64 {
	row, err := g.Repo.GetRiskLimitByName(ctx, name)
	if err != nil || row == nil || !row.Enabled {
		return fallback
	}
	return row.Value
}

// runChecks is the pure eight-check chain.
func runChecks(in checkInput, sig models.Signal) CheckResult {
	// 1. Kill switch blocks everything, regardless of signal quality.
	if in.KillSwitchActive {
		return fail(CheckKillSwitch, fmt.Sprintf("Kill switch active: %s", in.KillSwitchReason))
	}

	opening := sig.Action == models.ActionBuy || sig.Action == models.ActionShort

	// 2. Position size: current symbol exposure plus the proposed allocation.
	if opening && in.MaxPositionPct > 0 {
		current := in.Exposure.BySymbol[sig.Symbol]
		if current+sig.SizePct > in.MaxPositionPct {
			return fail(CheckPositionSize, fmt.Sprintf(
				"symbol exposure %.2f%% + proposed %.2f%% exceeds max %.2f%%",
				current*100, sig.SizePct*100, in.MaxPositionPct*100))
		}
	}

	// 3. Sector concentration: pass-through until sector data is wired in.

	// 4. Gross exposure.
	if in.MaxGrossExposure > 0 {
		gross := in.Exposure.GrossPct
		if opening {
			gross += sig.SizePct
		}
		if gross > in.MaxGrossExposure {
			return fail(CheckGrossExposure, fmt.Sprintf(
				"gross exposure %.0f%% exceeds max %.0f%%", gross*100, in.MaxGrossExposure*100))
		}
	}

	// 5. Net exposure window. Both bounds zero means no window is
	// configured, matching how the other limits treat an absent value.
	net := in.Exposure.NetPct
	switch sig.Action {
	case models.ActionBuy:
		net += sig.SizePct
	case models.ActionShort:
		net -= sig.SizePct
	}
	if (in.NetExposureMin != 0 || in.NetExposureMax != 0) && (net < in.NetExposureMin || net > in.NetExposureMax) {
		return fail(CheckNetExposure, fmt.Sprintf(
			"net exposure %.0f%% outside [%.0f%%, %.0f%%]",
			net*100, in.NetExposureMin*100, in.NetExposureMax*100))
	}

	// 6. Trading windows restrict opening only; an exit is never trapped.
	if opening && len(in.Windows) > 0 {
		inside := false
		for _, w := range in.Windows {
			if w.Contains(in.Now) {
				inside = true
				break
			}
		}
		if !inside {
			return fail(CheckTradingWindow, fmt.Sprintf("%s outside all permitted trading windows", sig.Symbol))
		}
	}

	// 7. Drawdown from all-time-high NAV.
	if in.MaxDrawdown > 0 && in.HighWaterNAV.GreaterThan(decimal.Zero) && in.Exposure.NAV.GreaterThan(decimal.Zero) {
		high, _ := in.HighWaterNAV.Float64()
		nav, _ := in.Exposure.NAV.Float64()
		drawdown := (high - nav) / high
		if drawdown > in.MaxDrawdown {
			return fail(CheckDrawdown, fmt.Sprintf(
				"drawdown %.1f%% exceeds max %.1f%%", drawdown*100, in.MaxDrawdown*100))
		}
	}

	// 8. Daily loss limit against the day-start NAV.
	if in.DailyLossLimit > 0 && in.DayStartNAV.GreaterThan(decimal.Zero) && in.Exposure.NAV.GreaterThan(decimal.Zero) {
		start, _ := in.DayStartNAV.Float64()
		nav, _ := in.Exposure.NAV.Float64()
		ret := (nav - start) / start
		if ret < -in.DailyLossLimit {
			return fail(CheckDailyLoss, fmt.Sprintf(
				"today's return %.2f%% breaches daily loss limit %.2f%%", ret*100, in.DailyLossLimit*100))
		}
	}

	return pass()
}
