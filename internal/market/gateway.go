package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"trendcast/internal/common"
)

// Candle is one closed (or currently forming) bar from a venue.
type Candle struct {
	Time  time.Time
	Close float64
}

// CandleSource is a venue client able to return recent candles in any order.
type CandleSource interface {
	Venue() string
	Candles(ctx context.Context, symbol string, count int) ([]Candle, error)
}

// Fetcher returns the latest count closing prices for a symbol, oldest
// first. Failures wrap common.ErrDataUnavailable.
type Fetcher interface {
	FetchLatest(ctx context.Context, symbol string, count int) ([]float64, error)
}

// MetricsInterface defines metrics methods needed by the gateway
type MetricsInterface interface {
	GatewayFetchesInc(venue, status string)
	GatewayLatencyObserve(venue string, seconds float64)
}

// Gateway normalizes venue candles into a RawSeries. It does not retry.
type Gateway struct {
	source  CandleSource
	timeout time.Duration
	metrics MetricsInterface
}

func NewGateway(source CandleSource, timeout time.Duration, metrics MetricsInterface) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{source: source, timeout: timeout, metrics: metrics}
}

func (g *Gateway) Venue() string { return g.source.Venue() }

func (g *Gateway) FetchLatest(ctx context.Context, symbol string, count int) ([]float64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: invalid observation count %d", common.ErrDataUnavailable, count)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	venue := g.source.Venue()
	start := time.Now()
	series, err := g.fetch(ctx, symbol, count)
	if g.metrics != nil {
		g.metrics.GatewayLatencyObserve(venue, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		g.metrics.GatewayFetchesInc(venue, status)
	}
	if err != nil {
		log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).Int("count", count).Msg("Market data fetch failed")
		return nil, err
	}

	log.Debug().Str("venue", venue).Str("symbol", symbol).Floats64("closes", series).Msg("Market data fetched")
	return series, nil
}

func (g *Gateway) fetch(ctx context.Context, symbol string, count int) ([]float64, error) {
	venue := g.source.Venue()
	candles, err := g.source.Candles(ctx, symbol, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrDataUnavailable, venue, symbol, err)
	}

	closes, err := latestCloses(candles, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrDataUnavailable, venue, symbol, err)
	}
	return closes, nil
}

// latestCloses orders candles oldest first and returns the closes of the
// last count of them. It never pads a short response.
func latestCloses(candles []Candle, count int) ([]float64, error) {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Time.Equal(sorted[i-1].Time) {
			return nil, fmt.Errorf("duplicate candle at %s", sorted[i].Time.UTC().Format(time.RFC3339))
		}
	}
	if len(sorted) < count {
		return nil, fmt.Errorf("venue returned %d candles, need %d", len(sorted), count)
	}

	sorted = sorted[len(sorted)-count:]
	closes := make([]float64, count)
	for i, c := range sorted {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 {
			return nil, fmt.Errorf("invalid close %v at %s", c.Close, c.Time.UTC().Format(time.RFC3339))
		}
		closes[i] = c.Close
	}
	return closes, nil
}
