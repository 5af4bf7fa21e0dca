package lifecycle

import (
	"context"
	"strings"

	"tradedesk/internal/config"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/thesis"
)

// ScoreInput carries everything the confidence pipeline needs. Principles
// and source stats are loaded by the engine; passing them explicitly keeps
// the pipeline itself pure.
type ScoreInput struct {
	Raw          float64
	ThesisStatus string
	Principles   []models.Principle
	Domain       string
	SourceStats  *models.SourceStats
}

// ScoreConfidence runs the deterministic confidence pipeline. Order matters:
// thesis-strength multiplier, principle weights, expertise factor, source
// accuracy, then a final clamp to [0,1]. An invalidated or archived thesis
// zeroes the score no matter what the other factors say.
func ScoreConfidence(cfg config.ScoringConfig, in ScoreInput) float64 {
	score := in.Raw

	if in.ThesisStatus != "" {
		score *= thesis.ConfidenceMultiplier(in.ThesisStatus)
	}

	for _, p := range in.Principles {
		if !p.Enabled {
			continue
		}
		// A principle with a domain only speaks to signals in that domain;
		// an empty domain applies everywhere.
		if p.Domain != "" && !strings.EqualFold(p.Domain, in.Domain) {
			continue
		}
		if p.ValidatedCount > p.InvalidatedCount {
			score += p.Weight
		} else {
			score -= p.Weight
		}
	}

	score *= expertiseFactor(cfg, in.Domain)
	score *= sourceAccuracyFactor(in.SourceStats)

	return clamp01(score)
}

func expertiseFactor(cfg config.ScoringConfig, domain string) float64 {
	boost := cfg.ExpertiseBoost
	if boost <= 0 {
		boost = 1.15
	}
	penalty := cfg.ExpertisePenalty
	if penalty <= 0 {
		penalty = 0.90
	}
	for _, d := range cfg.ExpertiseDomains {
		if strings.EqualFold(d, domain) {
			return boost
		}
	}
	return penalty
}

func sourceAccuracyFactor(stats *models.SourceStats) float64 {
	if stats == nil {
		return 1.0
	}
	rate := stats.WinRate()
	switch {
	case rate >= 0.7:
		return 1.15
	case rate >= 0.5:
		return 1.0
	default:
		return 0.85
	}
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

// loadScoreInput gathers the stored principles and source history for a
// scoring run. Lookup failures degrade to neutral factors.
func loadScoreInput(ctx context.Context, repo repository.Repository, raw float64, thesisStatus, domain, sourceType string) ScoreInput {
	in := ScoreInput{
		Raw:          raw,
		ThesisStatus: thesisStatus,
		Domain:       domain,
	}
	if repo == nil {
		return in
	}
	if principles, err := repo.ListEnabledPrinciples(ctx); err == nil {
		in.Principles = principles
	}
	if stats, err := repo.GetSourceStats(ctx, sourceType); err == nil {
		in.SourceStats = stats
	}
	return in
}
