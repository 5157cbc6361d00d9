// Package scheduler runs predictions for configured models on a cron
// schedule and records them in the history store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"trendcast/internal/predict"
	"trendcast/internal/storage"
)

// Predictor runs one prediction.
type Predictor interface {
	Predict(ctx context.Context, model string, data []float64) (*predict.Result, error)
}

// Recorder stores completed predictions.
type Recorder interface {
	StorePrediction(rec storage.PredictionRecord) error
}

// MetricsInterface defines metrics methods needed by the scheduler
type MetricsInterface interface {
	ScheduledRunsInc(model, status string)
}

// Scheduler triggers live predictions for a fixed list of models.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	models   []string
	service  Predictor
	recorder Recorder
	metrics  MetricsInterface
	timeout  time.Duration
}

// New creates a scheduler. spec is a standard five-field cron expression or
// a descriptor such as "@every 1h". recorder and metrics may be nil.
func New(spec string, models []string, service Predictor, recorder Recorder, metrics MetricsInterface, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:     cron.New(),
		spec:     spec,
		models:   models,
		service:  service,
		recorder: recorder,
		metrics:  metrics,
		timeout:  timeout,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runAll); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Strs("models", s.models).Msg("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runAll() {
	for _, model := range s.models {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		s.runJob(ctx, model)
		cancel()
	}
}

// runJob predicts model from live data. Failures are logged and counted; the
// next tick tries again.
func (s *Scheduler) runJob(ctx context.Context, model string) {
	runID := uuid.NewString()

	res, err := s.service.Predict(ctx, model, nil)
	if err != nil {
		log.Error().Err(err).Str("model", model).Str("run_id", runID).Msg("Scheduled prediction failed")
		s.count(model, "error")
		return
	}

	if s.recorder != nil {
		if err := s.recorder.StorePrediction(storage.NewPredictionRecord(res, runID, "schedule")); err != nil {
			log.Error().Err(err).Str("model", model).Str("run_id", runID).Msg("Failed to record scheduled prediction")
		}
	}
	s.count(model, "success")
	log.Info().Str("model", model).Str("label", string(res.Label)).Str("run_id", runID).Msg("Scheduled prediction recorded")
}

func (s *Scheduler) count(model, status string) {
	if s.metrics != nil {
		s.metrics.ScheduledRunsInc(model, status)
	}
}
