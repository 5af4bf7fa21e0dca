package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for a symbol.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	ChangePct float64
	Volume    int64
	Timestamp time.Time
}

// Bar is one period of price history.
type Bar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

type Fundamentals struct {
	Symbol       string
	Sector       string
	NextEarnings *time.Time
}

// Headline carries externally computed sentiment against a thesis'
// validation/failure criteria.
const (
	SentimentSupporting    = "supporting"
	SentimentContradicting = "contradicting"
	SentimentNeutral       = "neutral"
)

type Headline struct {
	Title       string
	Sentiment   string
	PublishedAt time.Time
}

// PoliticianTrade is a disclosed trade with an externally computed quality
// score (0-100) and politician tier.
type PoliticianTrade struct {
	Politician        string
	Symbol            string
	Action            string
	AmountUSD         decimal.Decimal
	QualityScore      float64
	Tier              string
	CommitteeRelevant bool
	TrackRecord       float64 // historical hit rate, 0-1
	TradedAt          time.Time
}

// QuoteProvider is the market-data capability consumed by the generator and
// risk gate. Failures degrade gracefully at call sites (cost-basis fallback,
// neutral scores); they never abort a scan.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetHistory(ctx context.Context, symbol string, days int) ([]Bar, error)
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
}

type NewsProvider interface {
	GetNews(ctx context.Context, criteria []string, since time.Time) ([]Headline, error)
}

type PoliticianTradeProvider interface {
	GetPoliticianTrades(ctx context.Context, symbol string, since time.Time) ([]PoliticianTrade, error)
}
