package coinbase

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
	var gotPath, gotGranularity string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotGranularity = r.URL.Query().Get("granularity")
		assert.NotEmpty(t, r.URL.Query().Get("start"))
		assert.NotEmpty(t, r.URL.Query().Get("end"))

		w.Header().Set("Content-Type", "application/json")
		// newest first, as Coinbase returns them
		_, _ = w.Write([]byte(`[
			[1717286400, 3700, 3820, 3760, 3810.5, 1200.1],
			[1717200000, 3710, 3790, 3780, 3760, 1100],
			[1717113600, 3720, 3800, 3750, 3780.25, 900.5]
		]`))
	}))
	defer server.Close()

	c, err := NewREST(server.URL, "1d", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "coinbase", c.Venue())

	candles, err := c.Candles(context.Background(), "ETH-USD", 3)
	require.NoError(t, err)

	assert.Equal(t, "/products/ETH-USD/candles", gotPath)
	assert.Equal(t, "86400", gotGranularity)
	require.Len(t, candles, 3)
	assert.Equal(t, 3810.5, candles[0].Close)
	assert.Equal(t, time.Unix(1717286400, 0).UTC(), candles[0].Time)
	assert.Equal(t, 3780.25, candles[2].Close)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"NotFound"}`))
	}))
	defer server.Close()

	c, err := NewREST(server.URL, "1h", time.Second)
	require.NoError(t, err)

	_, err = c.Candles(context.Background(), "FOO-BAR", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")
}

func TestClient_MalformedRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[1717286400, 3700, 3820]]`))
	}))
	defer server.Close()

	c, err := NewREST(server.URL, "1d", time.Second)
	require.NoError(t, err)

	_, err = c.Candles(context.Background(), "ETH-USD", 1)
	assert.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c, err := NewREST(server.URL, "1d", 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Candles(context.Background(), "ETH-USD", 5)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewREST_Validation(t *testing.T) {
	_, err := NewREST("", "2d", time.Second)
	assert.Error(t, err)

	c, err := NewREST("", "5m", 0)
	require.NoError(t, err)
	assert.Equal(t, 300, c.granularity)

	_, err = c.Candles(context.Background(), "ETH-USD", maxCandles)
	assert.Error(t, err)
}
