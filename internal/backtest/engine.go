package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"trendcast/internal/ml"
	"trendcast/internal/predict"
)

// Predictor runs one prediction on a supplied series.
type Predictor interface {
	Predict(ctx context.Context, model string, data []float64) (*predict.Result, error)
}

// Evaluation is the outcome of one walk-forward step.
type Evaluation struct {
	Time      time.Time `json:"time"`
	Close     float64   `json:"close"`
	NextClose float64   `json:"nextClose"`
	Label     ml.Label  `json:"label"`
	Value     float64   `json:"value"`
	Actual    ml.Label  `json:"actual"`
	Correct   bool      `json:"correct"`
	Return    float64   `json:"return"` // log return from Close to NextClose
}

// Results holds backtesting results
type Results struct {
	Model       string       `json:"model"`
	Version     string       `json:"version"`
	Horizon     int          `json:"horizon"`
	Evaluations []Evaluation `json:"evaluations"`
	Errors      int          `json:"errors"`

	Total          int     `json:"total"`
	Correct        int     `json:"correct"`
	Accuracy       float64 `json:"accuracy"`
	TruePositives  int     `json:"truePositives"`
	FalsePositives int     `json:"falsePositives"`
	TrueNegatives  int     `json:"trueNegatives"`
	FalseNegatives int     `json:"falseNegatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`

	// StrategyReturn sums log returns over steps labelled positive.
	StrategyReturn float64 `json:"strategyReturn"`
	BuyHoldReturn  float64 `json:"buyHoldReturn"`
	MaxDrawdown    float64 `json:"maxDrawdown"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Engine replays a close series through the prediction pipeline one window
// at a time and scores each label against what the market did next.
type Engine struct {
	service Predictor
	spec    ml.ModelSpec
	data    *DataLoader
	horizon int
}

// NewEngine creates a new backtesting engine. horizon is the number of bars
// ahead each label is scored against; values below one mean one.
func NewEngine(service Predictor, spec ml.ModelSpec, data *DataLoader, horizon int) *Engine {
	if horizon < 1 {
		horizon = 1
	}
	return &Engine{service: service, spec: spec, data: data, horizon: horizon}
}

// Run executes the backtest. Individual prediction failures are counted and
// skipped; the run fails only when there is not enough data for one step.
func (e *Engine) Run(ctx context.Context) (*Results, error) {
	candles := e.data.Candles()
	n := e.spec.InputLength
	if len(candles) < n+e.horizon {
		return nil, fmt.Errorf("need at least %d candles for model %s, have %d", n+e.horizon, e.spec.Name, len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	log.Info().
		Str("model", e.spec.Name).
		Time("start", e.data.StartTime).
		Time("end", e.data.EndTime).
		Int("steps", len(closes)-n-e.horizon+1).
		Msg("Starting backtest")

	results := &Results{
		Model:     e.spec.Name,
		Version:   e.spec.Version,
		Horizon:   e.horizon,
		StartTime: candles[n-1].Time,
	}

	for i := n - 1; i+e.horizon < len(closes); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window := closes[i-n+1 : i+1]
		res, err := e.service.Predict(ctx, e.spec.Name, window)
		if err != nil {
			results.Errors++
			log.Debug().Err(err).Time("at", candles[i].Time).Msg("Backtest step failed")
			continue
		}

		next := closes[i+e.horizon]
		actual := ml.Negative
		if next >= closes[i] {
			actual = ml.Positive
		}
		results.Evaluations = append(results.Evaluations, Evaluation{
			Time:      candles[i].Time,
			Close:     closes[i],
			NextClose: next,
			Label:     res.Label,
			Value:     res.Value,
			Actual:    actual,
			Correct:   res.Label == actual,
			Return:    math.Log(next / closes[i]),
		})
		results.EndTime = candles[i].Time
	}

	e.calculateStats(results)

	log.Info().
		Str("model", results.Model).
		Int("evaluated", results.Total).
		Int("errors", results.Errors).
		Float64("accuracy", results.Accuracy).
		Msg("Backtest finished")
	return results, nil
}

func (e *Engine) calculateStats(r *Results) {
	equity, peak := 0.0, 0.0
	for _, ev := range r.Evaluations {
		r.Total++
		if ev.Correct {
			r.Correct++
		}
		switch {
		case ev.Label == ml.Positive && ev.Actual == ml.Positive:
			r.TruePositives++
		case ev.Label == ml.Positive:
			r.FalsePositives++
		case ev.Actual == ml.Negative:
			r.TrueNegatives++
		default:
			r.FalseNegatives++
		}

		r.BuyHoldReturn += ev.Return
		if ev.Label == ml.Positive {
			r.StrategyReturn += ev.Return
			equity += ev.Return
		}
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}

	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total)
	}
	if p := r.TruePositives + r.FalsePositives; p > 0 {
		r.Precision = float64(r.TruePositives) / float64(p)
	}
	if p := r.TruePositives + r.FalseNegatives; p > 0 {
		r.Recall = float64(r.TruePositives) / float64(p)
	}
}
