package predict

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendcast/internal/common"
	"trendcast/internal/features"
	"trendcast/internal/ml"
)

// fakeGateway returns scripted responses in order, repeating the last one.
type fakeGateway struct {
	mu        sync.Mutex
	responses []gatewayResponse
	calls     int
	symbols   []string
}

type gatewayResponse struct {
	series []float64
	err    error
}

func (g *fakeGateway) FetchLatest(ctx context.Context, symbol string, count int) ([]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.symbols = append(g.symbols, symbol)
	r := g.responses[min(g.calls, len(g.responses)-1)]
	g.calls++
	return r.series, r.err
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type mockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	retries     int
}

func (m *mockMetrics) PredictionsInc(model, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[label]++
}

func (m *mockMetrics) PredictionErrorsInc(model, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[reason]++
}

func (m *mockMetrics) PredictionLatencyObserve(float64)        {}
func (m *mockMetrics) PredictionScoresObserve(string, float64) {}

func (m *mockMetrics) FetchRetriesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func unavailable(msg string) gatewayResponse {
	return gatewayResponse{err: fmt.Errorf("%w: %s", common.ErrDataUnavailable, msg)}
}

// The test model sums its three lagged returns, so the label is the sign of
// the sum of the last three percentage changes.
func newTestRegistry(t *testing.T, extra ...ml.ModelSpec) (*ml.Registry, *ml.MemoryStore) {
	t.Helper()
	store := ml.NewMemoryStore(map[string]string{
		"sum.json":   `{"weights": [1, 1, 1], "bias": 0}`,
		"prob.json":  `{"weights": [100, 0, 0], "bias": 0, "link": "logistic"}`,
		"class.json": `{"weights": [1, 0, 0], "bias": 0.5}`,
	})
	specs := append([]ml.ModelSpec{{
		Name:        "eth",
		Version:     "1",
		Kind:        ml.KindLinear,
		Path:        "sum.json",
		Symbol:      "ETH-USD",
		Token:       "ETH",
		InputLength: 5,
		Transform:   features.Spec{Name: "pct_change_lags", Lags: 3},
		Decision:    ml.Decision{Mode: ml.DecisionThreshold},
	}}, extra...)
	reg, err := ml.NewRegistry(store, specs, nil)
	require.NoError(t, err)
	return reg, store
}

func fastRetry(retries int) RetryPolicy {
	return NewRetryPolicy(retries, time.Millisecond)
}

func TestPredict_ClientData(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{unavailable("unused")}}
	metrics := &mockMetrics{}
	svc := New(reg, gw, fastRetry(2), metrics)

	tests := []struct {
		name string
		data []float64
		want ml.Label
	}{
		{"rising", []float64{100, 101, 102, 103, 104}, ml.Positive},
		{"falling", []float64{104, 103, 102, 101, 100}, ml.Negative},
		{"flat is positive", []float64{100, 100, 100, 100, 100}, ml.Positive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Predict(context.Background(), "eth", tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Label)
			assert.Equal(t, SourceClient, res.Source)
			assert.Equal(t, "eth", res.Model)
			assert.Len(t, res.Features, 3)
		})
	}
	assert.Equal(t, 0, gw.Calls())
	assert.Equal(t, 2, metrics.predictions["positive"])
}

func TestPredict_GatewayData(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{{series: []float64{3000, 3010, 3005, 3020, 3050}}}}
	svc := New(reg, gw, fastRetry(2), nil)

	res, err := svc.Predict(context.Background(), "eth", nil)
	require.NoError(t, err)
	assert.Equal(t, ml.Positive, res.Label)
	assert.Equal(t, SourceGateway, res.Source)
	assert.Equal(t, []float64{3000, 3010, 3005, 3020, 3050}, res.Series)
	assert.Equal(t, []string{"ETH-USD"}, gw.symbols)
}

func TestPredict_Idempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	svc := New(reg, nil, fastRetry(0), nil)
	data := []float64{2000, 1990, 2005, 1995, 1994.5}

	first, err := svc.Predict(context.Background(), "eth", data)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := svc.Predict(context.Background(), "eth", data)
		require.NoError(t, err)
		assert.Equal(t, first.Label, again.Label)
		assert.Equal(t, first.Value, again.Value)
	}
}

func TestPredict_UnknownModelTouchesNothing(t *testing.T) {
	reg, store := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{{series: []float64{1, 2, 3, 4, 5}}}}
	metrics := &mockMetrics{}
	svc := New(reg, gw, fastRetry(2), metrics)

	_, err := svc.Predict(context.Background(), "doge", nil)
	assert.True(t, errors.Is(err, common.ErrModelNotFound))
	assert.Equal(t, 0, gw.Calls())
	assert.Equal(t, 0, store.Opens())
	assert.Equal(t, 1, metrics.failures["model_not_found"])
}

func TestPredict_InvalidShapeNeverFetches(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{{series: []float64{1, 2, 3, 4, 5}}}}
	svc := New(reg, gw, fastRetry(2), nil)

	for _, data := range [][]float64{{}, {1, 2, 3, 4}, {1, 2, 3, 4, 5, 6}} {
		_, err := svc.Predict(context.Background(), "eth", data)
		assert.True(t, errors.Is(err, common.ErrInvalidInputShape), "len %d: %v", len(data), err)
	}
	assert.Equal(t, 0, gw.Calls())
}

func TestPredict_RetriesThenSucceeds(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{
		unavailable("timeout"),
		unavailable("short"),
		{series: []float64{5, 4, 3, 2, 1}},
	}}
	metrics := &mockMetrics{}
	svc := New(reg, gw, fastRetry(2), metrics)

	res, err := svc.Predict(context.Background(), "eth", nil)
	require.NoError(t, err)
	assert.Equal(t, ml.Negative, res.Label)
	assert.Equal(t, 3, gw.Calls())
	assert.Equal(t, 2, metrics.retries)
}

func TestPredict_RetriesAreBounded(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{unavailable("down")}}
	metrics := &mockMetrics{}
	svc := New(reg, gw, fastRetry(3), metrics)

	res, err := svc.Predict(context.Background(), "eth", nil)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))
	assert.Equal(t, 4, gw.Calls())
	assert.Equal(t, 1, metrics.failures["data_unavailable"])
	assert.Empty(t, metrics.predictions)
}

func TestPredict_OtherGatewayErrorsAreNotRetried(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{{err: errors.New("programming error")}}}
	svc := New(reg, gw, fastRetry(3), nil)

	_, err := svc.Predict(context.Background(), "eth", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, gw.Calls())
}

func TestPredict_ContextCancelStopsRetries(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{unavailable("down")}}
	svc := New(reg, gw, NewRetryPolicy(5, time.Hour), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.Predict(ctx, "eth", nil)
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))
	assert.Equal(t, 1, gw.Calls())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPredict_NoGateway(t *testing.T) {
	reg, _ := newTestRegistry(t)
	svc := New(reg, nil, fastRetry(2), nil)

	_, err := svc.Predict(context.Background(), "eth", nil)
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))
}

func TestPredict_GatewayGarbageIsInvalidShape(t *testing.T) {
	reg, _ := newTestRegistry(t)
	gw := &fakeGateway{responses: []gatewayResponse{{series: []float64{1, 2, 3}}}}
	svc := New(reg, gw, fastRetry(0), nil)

	_, err := svc.Predict(context.Background(), "eth", nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInputShape))
}

func TestPredict_DecisionModes(t *testing.T) {
	prob := ml.ModelSpec{
		Name: "eth-prob", Version: "1", Kind: ml.KindLinear, Path: "prob.json",
		Symbol: "ETH-USD", InputLength: 5,
		Transform: features.Spec{Name: "pct_change_lags", Lags: 3},
		Decision:  ml.Decision{Mode: ml.DecisionProbability, Threshold: 0.5},
	}
	class := ml.ModelSpec{
		Name: "eth-class", Version: "1", Kind: ml.KindLinear, Path: "class.json",
		Symbol: "ETH-USD", InputLength: 5,
		Transform: features.Spec{Name: "pct_change_lags", Lags: 3},
		Decision:  ml.Decision{Mode: ml.DecisionClass},
	}
	reg, _ := newTestRegistry(t, prob, class)
	metrics := &mockMetrics{}
	svc := New(reg, nil, fastRetry(0), metrics)

	res, err := svc.Predict(context.Background(), "eth-prob", []float64{100, 100, 100, 100, 101})
	require.NoError(t, err)
	assert.Equal(t, ml.Positive, res.Label)
	require.NotNil(t, res.Confidence)
	assert.Greater(t, *res.Confidence, 0.5)

	// bias 0.5 plus a small return is never exactly 0 or 1
	res, err = svc.Predict(context.Background(), "eth-class", []float64{100, 100, 100, 100, 101})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, common.ErrInference))
	assert.Equal(t, 1, metrics.failures["inference"])
}

func TestReason(t *testing.T) {
	tests := map[error]string{
		fmt.Errorf("x: %w", common.ErrModelNotFound):     "model_not_found",
		fmt.Errorf("x: %w", common.ErrModelLoad):         "model_load",
		fmt.Errorf("x: %w", common.ErrInvalidInputShape): "invalid_input_shape",
		fmt.Errorf("x: %w", common.ErrDataUnavailable):   "data_unavailable",
		fmt.Errorf("x: %w", common.ErrInference):         "inference",
		errors.New("other"):                              "internal",
	}
	for err, want := range tests {
		assert.Equal(t, want, Reason(err))
	}
}

func TestPredict_ShippedETHModel(t *testing.T) {
	reg, err := ml.NewRegistryFromManifest(filepath.Join("..", "..", "models", "manifest.yaml"), nil)
	require.NoError(t, err)
	svc := New(reg, nil, fastRetry(0), nil)
	ctx := context.Background()

	res, err := svc.Predict(ctx, common.ETHModelName, []float64{50000.1, 51000.2, 50500.3, 52000.4, 51500.5})
	require.NoError(t, err)
	assert.Equal(t, ml.Positive, res.Label)
	assert.GreaterOrEqual(t, res.Value, 0.0)
	assert.Equal(t, SourceClient, res.Source)
	assert.Equal(t, common.ETHModelName, res.Model)

	_, err = svc.Predict(ctx, common.ETHModelName, []float64{1.0, 2.0})
	assert.True(t, errors.Is(err, common.ErrInvalidInputShape), err)

	_, err = svc.Predict(ctx, "btc", []float64{50000.1, 51000.2, 50500.3, 52000.4, 51500.5})
	assert.True(t, errors.Is(err, common.ErrModelNotFound), err)
}

func TestRetryPolicy_Budget(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   time.Duration
	}{
		{"no retries", NewRetryPolicy(0, 500*time.Millisecond), 10 * time.Second},
		{"two retries", NewRetryPolicy(2, 500*time.Millisecond), 30*time.Second + 500*time.Millisecond + time.Second},
		// Delays 1, 2, 4, 8, 8 seconds once the cap is reached.
		{"capped backoff", NewRetryPolicy(5, time.Second), 60*time.Second + 23*time.Second},
		{"zero attempts", RetryPolicy{}, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Budget(10*time.Second))
		})
	}
}
