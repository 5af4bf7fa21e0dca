package taxledger

import (
	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

// GainReport buckets realized gains by the 365-day holding-period threshold
// and estimates the tax owed.
type GainReport struct {
	ShortTermGain decimal.Decimal
	LongTermGain  decimal.Decimal
	TaxLiability  decimal.Decimal
}

// EstimateTax computes the report for a set of lot consumptions in one
// account. Tax-advantaged accounts always report zero liability on internal
// trades.
func (e *Engine) EstimateTax(account models.Account, consumed []LotConsumption) GainReport {
	report := GainReport{
		ShortTermGain: decimal.Zero,
		LongTermGain:  decimal.Zero,
		TaxLiability:  decimal.Zero,
	}
	for _, c := range consumed {
		if c.LongTerm {
			report.LongTermGain = report.LongTermGain.Add(c.RealizedPnL)
		} else {
			report.ShortTermGain = report.ShortTermGain.Add(c.RealizedPnL)
		}
	}
	if account.TaxAdvantaged() {
		return report
	}

	ordinary := decimal.NewFromFloat(e.ordinaryRate())
	capital := decimal.NewFromFloat(e.capitalGainRate())
	if report.ShortTermGain.GreaterThan(decimal.Zero) {
		report.TaxLiability = report.TaxLiability.Add(report.ShortTermGain.Mul(ordinary))
	}
	if report.LongTermGain.GreaterThan(decimal.Zero) {
		report.TaxLiability = report.TaxLiability.Add(report.LongTermGain.Mul(capital))
	}
	return report
}

func (e *Engine) ordinaryRate() float64 {
	if e == nil || e.Config.OrdinaryRate <= 0 {
		return 0.37
	}
	return e.Config.OrdinaryRate
}

func (e *Engine) capitalGainRate() float64 {
	if e == nil || e.Config.CapitalGainRate <= 0 {
		return 0.20
	}
	return e.Config.CapitalGainRate
}
