package coinbase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"trendcast/internal/common"
	"trendcast/internal/market"
)

// Candle granularities accepted by the Coinbase Exchange API, in seconds.
var granularities = map[string]int{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"6h":  21600,
	"1d":  86400,
}

// maxCandles is the most rows Coinbase returns for one request.
const maxCandles = 300

// Client reads public market data from the Coinbase Exchange REST API.
type Client struct {
	base        string
	granularity int
	rest        *resty.Client
}

func NewREST(base, interval string, timeout time.Duration) (*Client, error) {
	g, ok := granularities[interval]
	if !ok {
		return nil, fmt.Errorf("coinbase: unsupported candle interval %q", interval)
	}
	if base == "" {
		base = common.DefaultCoinbaseURL
	}

	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultRESTTimeout)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "trendcast")
	return &Client{base: base, granularity: g, rest: r}, nil
}

func (c *Client) Venue() string { return common.VenueCoinbase }

type apiError struct {
	Message string `json:"message"`
}

// Row is one candle as returned by /products/{id}/candles:
// [time, low, high, open, close, volume].
type Row []float64

func (r Row) Time() time.Time { return time.Unix(int64(r[0]), 0).UTC() }
func (r Row) Close() float64  { return r[4] }

// GetCandles fetches candles for product between start and end. Coinbase
// returns them newest first.
func (c *Client) GetCandles(ctx context.Context, product string, granularity int, start, end time.Time) ([]Row, error) {
	path := fmt.Sprintf("/products/%s/candles", product)

	params := map[string]string{
		"granularity": strconv.Itoa(granularity),
	}
	if !start.IsZero() {
		params["start"] = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		params["end"] = end.UTC().Format(time.RFC3339)
	}

	var rows []Row
	apiErr := &apiError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&rows).
		SetError(apiErr).
		Get(c.base + path)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		if apiErr.Message != "" {
			return nil, fmt.Errorf("API error: status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("malformed candle row %d: %v", i, []float64(row))
		}
	}
	return rows, nil
}

// Candles returns up to count of the most recent candles for symbol,
// including the one currently forming.
func (c *Client) Candles(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	if count >= maxCandles {
		return nil, fmt.Errorf("coinbase: need fewer than %d candles per request, asked for %d", maxCandles, count)
	}

	step := time.Duration(c.granularity) * time.Second
	end := time.Now().UTC()
	// One extra step so a window boundary never drops the oldest candle.
	start := end.Add(-time.Duration(count+1) * step)

	rows, err := c.GetCandles(ctx, symbol, c.granularity, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]market.Candle, len(rows))
	for i, row := range rows {
		out[i] = market.Candle{Time: row.Time(), Close: row.Close()}
	}
	return out, nil
}
