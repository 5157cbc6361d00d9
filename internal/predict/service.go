package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"trendcast/internal/common"
	"trendcast/internal/features"
	"trendcast/internal/market"
	"trendcast/internal/ml"
)

// Source records where the series behind a prediction came from.
type Source string

const (
	SourceClient  Source = "client"
	SourceGateway Source = "gateway"
)

// Result is a completed prediction. Token mapping is left to callers.
type Result struct {
	Model      string    `json:"model"`
	Version    string    `json:"version"`
	Label      ml.Label  `json:"label"`
	Value      float64   `json:"value"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     Source    `json:"source"`
	Series     []float64 `json:"series"`
	Features   []float64 `json:"features"`
	At         time.Time `json:"at"`
}

// Resolver returns a loaded predictor by model name.
type Resolver interface {
	Get(name string) (*ml.Predictor, error)
}

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	PredictionsInc(model, label string)
	PredictionErrorsInc(model, reason string)
	PredictionLatencyObserve(float64)
	PredictionScoresObserve(model string, raw float64)
	FetchRetriesInc()
}

// RetryPolicy bounds gateway retries. Attempts counts the first call.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy retries a failed fetch twice, starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(common.DefaultFetchRetries, common.DefaultRetryDelay)
}

// NewRetryPolicy builds a policy with retries extra attempts and a backoff
// capped at eight times the base delay.
func NewRetryPolicy(retries int, delay time.Duration) RetryPolicy {
	return RetryPolicy{Attempts: retries + 1, BaseDelay: delay, MaxDelay: 8 * delay}
}

// Budget is the longest a fetch can take when every attempt runs for
// attemptTimeout, including the backoff sleeps between attempts.
func (p RetryPolicy) Budget(attemptTimeout time.Duration) time.Duration {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	total := time.Duration(attempts) * attemptTimeout
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		total += delay
		delay = p.nextDelay(delay)
	}
	return total
}

func (p RetryPolicy) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Service runs the fetch, feature and inference pipeline for one request.
// It never substitutes a default label when a stage fails.
type Service struct {
	registry Resolver
	gateway  market.Fetcher
	retry    RetryPolicy
	metrics  MetricsInterface
}

// New creates a service. gateway may be nil, in which case requests must
// carry their own series.
func New(registry Resolver, gateway market.Fetcher, retry RetryPolicy, metrics MetricsInterface) *Service {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Service{registry: registry, gateway: gateway, retry: retry, metrics: metrics}
}

// Predict classifies the trend for model. A nil data slice means the series
// is fetched from the gateway; any non-nil slice, even an empty one, is used
// as supplied.
func (s *Service) Predict(ctx context.Context, model string, data []float64) (*Result, error) {
	start := time.Now()
	res, err := s.predict(ctx, model, data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PredictionErrorsInc(model, Reason(err))
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PredictionsInc(model, string(res.Label))
		s.metrics.PredictionScoresObserve(model, res.Value)
		s.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	log.Info().
		Str("model", model).
		Str("label", string(res.Label)).
		Float64("value", res.Value).
		Str("source", string(res.Source)).
		Dur("duration", time.Since(start)).
		Msg("Prediction completed")
	return res, nil
}

func (s *Service) predict(ctx context.Context, model string, data []float64) (*Result, error) {
	log.Debug().Str("model", model).Msg("Resolving model")
	p, err := s.registry.Get(model)
	if err != nil {
		return nil, err
	}
	spec := p.Spec()

	series, source := data, SourceClient
	if data == nil {
		log.Debug().Str("model", model).Str("symbol", spec.Symbol).Msg("Obtaining series")
		series, err = s.fetchSeries(ctx, spec.Symbol, spec.InputLength)
		if err != nil {
			return nil, err
		}
		source = SourceGateway
	}

	fv, err := features.Build(series, spec.InputLength, spec.Transform)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}

	raw, err := p.Invoke(fv)
	if err != nil {
		return nil, err
	}

	label, confidence, err := p.Decide(raw)
	if err != nil {
		return nil, err
	}

	return &Result{
		Model:      spec.Name,
		Version:    spec.Version,
		Label:      label,
		Value:      raw,
		Confidence: confidence,
		Source:     source,
		Series:     append([]float64(nil), series...),
		Features:   fv,
		At:         time.Now().UTC(),
	}, nil
}

// fetchSeries calls the gateway, retrying only DataUnavailable failures with
// exponential backoff. A done context stops the loop immediately.
func (s *Service) fetchSeries(ctx context.Context, symbol string, count int) ([]float64, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no market data gateway configured", common.ErrDataUnavailable)
	}

	delay := s.retry.BaseDelay
	for attempt := 1; ; attempt++ {
		series, err := s.gateway.FetchLatest(ctx, symbol, count)
		if err == nil {
			return series, nil
		}
		if !errors.Is(err, common.ErrDataUnavailable) || attempt >= s.retry.Attempts || ctx.Err() != nil {
			return nil, err
		}

		log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying market data fetch")
		if s.metrics != nil {
			s.metrics.FetchRetriesInc()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}

		delay = s.retry.nextDelay(delay)
	}
}

// Reason maps an error to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, common.ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, common.ErrModelLoad):
		return "model_load"
	case errors.Is(err, common.ErrInvalidInputShape):
		return "invalid_input_shape"
	case errors.Is(err, common.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, common.ErrInference):
		return "inference"
	default:
		return "internal"
	}
}
