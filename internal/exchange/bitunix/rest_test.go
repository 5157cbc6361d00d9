package bitunix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Candles(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/market/klines", r.URL.Path)
		query = map[string]string{
			"symbol":   r.URL.Query().Get("symbol"),
			"interval": r.URL.Query().Get("interval"),
			"limit":    r.URL.Query().Get("limit"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"openTime": 1717113600000, "open": "3750", "high": "3800", "low": "3720", "close": "3780.25", "volume": "900.5", "closeTime": 1717199999999},
			{"openTime": 1717200000000, "open": "3780", "high": "3790", "low": "3710", "close": "3760", "volume": "1100", "closeTime": 1717286399999}
		]`))
	}))
	defer server.Close()

	c, err := NewREST(server.URL, Interval1d, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bitunix", c.Venue())

	candles, err := c.Candles(context.Background(), "ETH-USD", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"symbol": "ETHUSDT", "interval": "1d", "limit": "2"}, query)

	require.Len(t, candles, 2)
	assert.Equal(t, 3780.25, candles[0].Close)
	assert.Equal(t, time.UnixMilli(1717200000000).UTC(), candles[1].Time)
}

func TestClient_GetKlinesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := NewREST(server.URL, Interval1h, time.Second)
	require.NoError(t, err)

	_, err = c.GetKlines(context.Background(), "ETHUSDT", Interval1h, 0, 0, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestVenueSymbol(t *testing.T) {
	tests := map[string]string{
		"ETH-USD":  "ETHUSDT",
		"eth/usd":  "ETHUSDT",
		"BTCUSDT":  "BTCUSDT",
		"SOL-USDC": "SOLUSDC",
	}
	for in, want := range tests {
		assert.Equal(t, want, VenueSymbol(in), in)
	}
}

func TestNewREST_RejectsInterval(t *testing.T) {
	_, err := NewREST("", KlineInterval("2d"), time.Second)
	assert.Error(t, err)
}
