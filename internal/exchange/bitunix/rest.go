package bitunix

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trendcast/internal/common"
	"trendcast/internal/market"
)

// Client reads public kline data from the Bitunix REST API.
type Client struct {
	base     string
	interval KlineInterval
	rest     *resty.Client
}

func NewREST(base string, interval KlineInterval, timeout time.Duration) (*Client, error) {
	if !interval.valid() {
		return nil, fmt.Errorf("bitunix: unsupported kline interval %q", interval)
	}
	if base == "" {
		base = common.DefaultBitunixURL
	}

	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultRESTTimeout)
	}
	return &Client{base: base, interval: interval, rest: r}, nil
}

func (c *Client) Venue() string { return common.VenueBitunix }

// KlineInterval represents kline/candlestick intervals
type KlineInterval string

const (
	Interval1m  KlineInterval = "1m"
	Interval5m  KlineInterval = "5m"
	Interval15m KlineInterval = "15m"
	Interval1h  KlineInterval = "1h"
	Interval4h  KlineInterval = "4h"
	Interval1d  KlineInterval = "1d"
)

func (i KlineInterval) valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d:
		return true
	}
	return false
}

// Kline represents a candlestick data point
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// GetKlines fetches historical kline data
func (c *Client) GetKlines(ctx context.Context, symbol string, interval KlineInterval, startTime, endTime int64, limit int) ([]Kline, error) {
	path := "/api/v1/market/klines"

	params := map[string]string{
		"symbol":   symbol,
		"interval": string(interval),
		"limit":    strconv.Itoa(limit),
	}

	if startTime > 0 {
		params["startTime"] = strconv.FormatInt(startTime, 10)
	}
	if endTime > 0 {
		params["endTime"] = strconv.FormatInt(endTime, 10)
	}

	var klines []Kline
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&klines).
		Get(c.base + path)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	return klines, nil
}

// Candles returns the most recent count klines for symbol. Symbols in
// BASE-QUOTE form are mapped to the venue's USDT pairs.
func (c *Client) Candles(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	klines, err := c.GetKlines(ctx, VenueSymbol(symbol), c.interval, 0, 0, count)
	if err != nil {
		return nil, err
	}

	out := make([]market.Candle, len(klines))
	for i, k := range klines {
		out[i] = market.Candle{Time: time.UnixMilli(k.OpenTime).UTC(), Close: k.Close}
	}
	return out, nil
}

// VenueSymbol converts "ETH-USD" or "ETH/USD" to "ETHUSDT".
func VenueSymbol(symbol string) string {
	s := strings.ToUpper(strings.NewReplacer("-", "", "/", "").Replace(symbol))
	if strings.HasSuffix(s, "USD") {
		s += "T"
	}
	return s
}
