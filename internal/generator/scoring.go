package generator

import (
	"math"

	"github.com/shopspring/decimal"

	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
)

// Factor weights. They sum to 1.0 so a perfect candidate scores 1.0 before
// the lifecycle pipeline runs.
const (
	weightConviction  = 0.30
	weightTrigger     = 0.20
	weightNews        = 0.15
	weightCritic      = 0.15
	weightCalibration = 0.10
	weightPolitician  = 0.10
)

// criticAssessment maps thesis status to the critic factor.
var criticAssessment = map[string]float64{
	models.ThesisConfirmed:     0.9,
	models.ThesisStrengthening: 0.75,
	models.ThesisActive:        0.5,
	models.ThesisWeakening:     0.25,
	models.ThesisInvalidated:   0.1,
	models.ThesisArchived:      0.0,
}

// Factors holds the six normalized inputs to the weighted score. Each is in
// [0,1]; absent data defaults to the neutral 0.5 except the binary trigger.
type Factors struct {
	Conviction  float64
	TriggerHit  bool
	TriggerMag  float64 // trigger magnitude as a fraction, e.g. 0.03 for a 3% move
	News        float64
	Critic      float64
	Calibration float64
	Politician  float64
}

// weightedScore is the multi-factor blend. Conviction gets a boost of up to
// +0.15 from the trigger magnitude, capped at 1.0 before weighting.
func weightedScore(f Factors) float64 {
	conviction := f.Conviction
	if f.TriggerHit {
		conviction = math.Min(1.0, conviction+math.Min(0.15, f.TriggerMag*3))
	}
	trigger := 0.0
	if f.TriggerHit {
		trigger = 1.0
	}
	score := conviction*weightConviction +
		trigger*weightTrigger +
		f.News*weightNews +
		f.Critic*weightCritic +
		f.Calibration*weightCalibration +
		f.Politician*weightPolitician
	return clamp01(score)
}

// sellUrgency replaces the raw score for SELL candidates: an exit must score
// high even when the multi-factor blend is low, so take the larger of the
// weighted score and the inverted critic assessment.
func sellUrgency(f Factors) float64 {
	return clamp01(math.Max(weightedScore(f), 1-f.Critic))
}

// priceTrigger reports whether the symbol's recent move trips either trigger
// and returns the larger move as the magnitude.
func priceTrigger(quote *marketdata.Quote, history []marketdata.Bar, dailyPct, fiveDayPct float64) (bool, float64) {
	daily := 0.0
	if quote != nil {
		daily = math.Abs(quote.ChangePct) / 100
	}
	fiveDay := fiveDayMove(history)

	hit := daily >= dailyPct/100 || fiveDay >= fiveDayPct/100
	return hit, math.Max(daily, fiveDay)
}

// fiveDayMove is the absolute fractional move from the close five bars back
// to the latest close. Bars are expected oldest-first.
func fiveDayMove(history []marketdata.Bar) float64 {
	if len(history) < 6 {
		return 0
	}
	oldest := history[len(history)-6].Close
	latest := history[len(history)-1].Close
	if oldest.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	move, _ := latest.Sub(oldest).Div(oldest).Float64()
	return math.Abs(move)
}

// newsSentiment folds headline sentiment over the trailing window into
// (supporting - contradicting + total) / (2 * total); neutral 0.5 with no
// news.
func newsSentiment(headlines []marketdata.Headline) float64 {
	total := len(headlines)
	if total == 0 {
		return 0.5
	}
	supporting, contradicting := 0, 0
	for _, h := range headlines {
		switch h.Sentiment {
		case marketdata.SentimentSupporting:
			supporting++
		case marketdata.SentimentContradicting:
			contradicting++
		}
	}
	return clamp01(float64(supporting-contradicting+total) / float64(2*total))
}

// politicianAlignment scores disclosed trades by direction, weighted by
// trade size, quality score, committee relevance and the politician's track
// record; neutral 0.5 with no disclosures.
func politicianAlignment(trades []marketdata.PoliticianTrade, action string) float64 {
	if len(trades) == 0 {
		return 0.5
	}
	buying := action == models.ActionBuy || action == models.ActionCover

	var aligned, totalWeight float64
	for _, t := range trades {
		weight := tradeWeight(t)
		totalWeight += weight
		tradeBuy := t.Action == models.ActionBuy || t.Action == "buy"
		if tradeBuy == buying {
			aligned += weight
		}
	}
	if totalWeight == 0 {
		return 0.5
	}
	return clamp01(aligned / totalWeight)
}

func tradeWeight(t marketdata.PoliticianTrade) float64 {
	size := 1.0
	switch {
	case t.AmountUSD.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		size = 3.0
	case t.AmountUSD.GreaterThanOrEqual(decimal.NewFromInt(100_000)):
		size = 2.0
	}
	quality := t.QualityScore / 100
	if quality <= 0 {
		quality = 0.5
	}
	committee := 1.0
	if t.CommitteeRelevant {
		committee = 1.5
	}
	record := t.TrackRecord
	if record <= 0 {
		record = 0.5
	}
	return size * quality * committee * record
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
