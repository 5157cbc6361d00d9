package backtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendcast/internal/features"
	"trendcast/internal/market"
	"trendcast/internal/ml"
	"trendcast/internal/predict"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromCSV(t *testing.T) {
	path := writeFile(t, "eth.csv", `date,open,close
2024-06-03,3000,3100
2024-06-01,2900,3000
2024-06-02,3000,not-a-number
2024-06-02,3000,3050
bad-date,1,1
2024-06-04,3100,0
`)
	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromCSV(path))

	candles := dl.Candles()
	require.Len(t, candles, 3)
	assert.Equal(t, 3000.0, candles[0].Close)
	assert.Equal(t, 3050.0, candles[1].Close)
	assert.Equal(t, 3100.0, candles[2].Close)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), dl.StartTime)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), dl.EndTime)
}

func TestLoadFromCSV_MissingColumns(t *testing.T) {
	path := writeFile(t, "bad.csv", "date,price\n2024-06-01,1\n")
	assert.Error(t, NewDataLoader().LoadFromCSV(path))
}

func TestLoadFromJSON(t *testing.T) {
	path := writeFile(t, "eth.json", `{"time": "1717286400", "close": 3050}
{"time": "2024-06-01T00:00:00Z", "close": 3000}
`)
	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromJSON(path))
	require.Equal(t, 2, dl.GetDataCount())
	assert.Equal(t, 3000.0, dl.Candles()[0].Close)
}

type staticSource struct {
	candles []market.Candle
}

func (s staticSource) Venue() string { return "static" }

func (s staticSource) Candles(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	return s.candles, nil
}

func TestLoadFromSourceAndFilter(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := staticSource{candles: []market.Candle{
		{Time: base.AddDate(0, 0, 2), Close: 3},
		{Time: base, Close: 1},
		{Time: base.AddDate(0, 0, 1), Close: 2},
	}}
	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromSource(context.Background(), src, "ETH-USD", 3))
	assert.Equal(t, 3, dl.GetDataCount())

	dl.Filter(base.AddDate(0, 0, 1), time.Time{})
	require.Equal(t, 2, dl.GetDataCount())
	assert.Equal(t, 2.0, dl.Candles()[0].Close)
}

func newService(t *testing.T) (*predict.Service, ml.ModelSpec) {
	t.Helper()
	spec := ml.ModelSpec{
		Name: "eth", Version: "1", Kind: ml.KindLinear, Path: "sum.json",
		Symbol: "ETH-USD", InputLength: 5,
		Transform: features.Spec{Name: "pct_change_lags", Lags: 3},
		Decision:  ml.Decision{Mode: ml.DecisionThreshold},
	}
	store := ml.NewMemoryStore(map[string]string{"sum.json": `{"weights": [1, 1, 1], "bias": 0}`})
	reg, err := ml.NewRegistry(store, []ml.ModelSpec{spec}, nil)
	require.NoError(t, err)
	return predict.New(reg, nil, predict.NewRetryPolicy(0, time.Millisecond), nil), spec
}

func loaderWith(closes ...float64) *DataLoader {
	dl := NewDataLoader()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		dl.candles = append(dl.candles, market.Candle{Time: base.AddDate(0, 0, i), Close: c})
	}
	dl.finish()
	return dl
}

func TestEngine_SteadyTrend(t *testing.T) {
	svc, spec := newService(t)
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 1000 + 10*float64(i)
	}

	results, err := NewEngine(svc, spec, loaderWith(closes...), 1).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, results.Total)
	assert.Equal(t, 0, results.Errors)
	assert.Equal(t, 1.0, results.Accuracy)
	assert.Equal(t, 25, results.TruePositives)
	assert.Equal(t, 1.0, results.Precision)
	assert.InDelta(t, results.BuyHoldReturn, results.StrategyReturn, 1e-12)
	assert.Zero(t, results.MaxDrawdown)
}

func TestEngine_Reversal(t *testing.T) {
	svc, spec := newService(t)
	// Rises for six bars, then falls. The lagged sum stays positive for two
	// bars after the top before it turns.
	loader := loaderWith(100, 101, 102, 103, 104, 105, 104, 103, 102, 101, 100)

	results, err := NewEngine(svc, spec, loader, 1).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 6, results.Total)
	assert.Equal(t, 1, results.TruePositives)
	assert.Equal(t, 2, results.FalsePositives)
	assert.Equal(t, 3, results.TrueNegatives)
	assert.InDelta(t, 4.0/6.0, results.Accuracy, 1e-12)
	assert.Greater(t, results.MaxDrawdown, 0.0)
	assert.Equal(t, ml.Negative, results.Evaluations[1].Actual)
}

type failingPredictor struct{}

func (failingPredictor) Predict(ctx context.Context, model string, data []float64) (*predict.Result, error) {
	return nil, errors.New("boom")
}

func TestEngine_ErrorsAreCounted(t *testing.T) {
	_, spec := newService(t)
	results, err := NewEngine(failingPredictor{}, spec, loaderWith(1, 2, 3, 4, 5, 6, 7), 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, results.Errors)
	assert.Zero(t, results.Total)
}

func TestEngine_NotEnoughData(t *testing.T) {
	svc, spec := newService(t)
	_, err := NewEngine(svc, spec, loaderWith(1, 2, 3, 4, 5), 1).Run(context.Background())
	assert.Error(t, err)
}

func TestReporter(t *testing.T) {
	svc, spec := newService(t)
	results, err := NewEngine(svc, spec, loaderWith(100, 101, 102, 103, 104, 105, 104, 103), 1).Run(context.Background())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "report")
	require.NoError(t, NewReporter(results, out).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(out, "backtest_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Model: eth")
	assert.Contains(t, string(summary), "Accuracy:")

	logCSV, err := os.ReadFile(filepath.Join(out, "evaluation_log.csv"))
	require.NoError(t, err)
	assert.Equal(t, results.Total+1, strings.Count(string(logCSV), "\n"))

	_, err = os.Stat(filepath.Join(out, "backtest_results.json"))
	assert.NoError(t, err)
}
