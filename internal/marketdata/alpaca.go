package marketdata

import (
	"context"
	"fmt"
	"time"

	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaProvider backs QuoteProvider with alpaca's market-data API.
// Credentials come from the standard APCA_* environment variables.
type AlpacaProvider struct {
	client *md.Client
}

var _ QuoteProvider = (*AlpacaProvider)(nil)

func NewAlpacaProvider() *AlpacaProvider {
	return &AlpacaProvider{
		client: md.NewClient(md.ClientOpts{}),
	}
}

func (p *AlpacaProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	trade, err := p.client.GetLatestTrade(symbol, md.GetLatestTradeRequest{})
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, fmt.Errorf("marketdata: no trade for %s", symbol)
	}
	quote := &Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(trade.Price),
		Timestamp: trade.Timestamp,
	}

	// Daily change comes from the last two daily bars; a missing history
	// just leaves ChangePct at zero.
	bars, err := p.history(symbol, 2)
	if err == nil && len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		if prev.GreaterThan(decimal.Zero) {
			change, _ := quote.Price.Sub(prev).Div(prev).Float64()
			quote.ChangePct = change * 100
		}
		quote.Volume = bars[len(bars)-1].Volume
	}
	return quote, nil
}

func (p *AlpacaProvider) GetHistory(ctx context.Context, symbol string, days int) ([]Bar, error) {
	return p.history(symbol, days)
}

func (p *AlpacaProvider) history(symbol string, days int) ([]Bar, error) {
	if days <= 0 {
		days = 30
	}
	start := time.Now().AddDate(0, 0, -days*2)
	bars, err := p.client.GetBars(symbol, md.GetBarsRequest{
		TimeFrame: md.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, Bar{
			Date:   b.Timestamp,
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

// GetFundamentals returns only the symbol; alpaca's market-data API carries
// no sector or earnings calendar, so callers fall back to neutral behavior.
func (p *AlpacaProvider) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	return &Fundamentals{Symbol: symbol}, nil
}
