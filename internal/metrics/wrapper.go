package metrics

// MetricsWrapper adapts Metrics to the small interfaces the registry,
// gateway, prediction service and scheduler depend on, so those packages do
// not import prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Registry

func (w *MetricsWrapper) ModelLoadsInc(model string) {
	w.m.ModelLoads.WithLabelValues(model).Inc()
	w.m.ModelsLoaded.Inc()
}

func (w *MetricsWrapper) ModelLoadFailuresInc(model string) {
	w.m.ModelLoadFailures.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) InferenceLatencyObserve(seconds float64) {
	w.m.InferenceLatency.Observe(seconds)
}

// Market data

func (w *MetricsWrapper) GatewayFetchesInc(venue, status string) {
	w.m.GatewayFetches.WithLabelValues(venue, status).Inc()
}

func (w *MetricsWrapper) GatewayLatencyObserve(venue string, seconds float64) {
	w.m.GatewayLatency.WithLabelValues(venue).Observe(seconds)
}

func (w *MetricsWrapper) CacheHitsInc() {
	w.m.CacheHits.Inc()
}

func (w *MetricsWrapper) CacheMissesInc() {
	w.m.CacheMisses.Inc()
}

// Prediction service

func (w *MetricsWrapper) PredictionsInc(model, label string) {
	w.m.PredictionsTotal.WithLabelValues(model, label).Inc()
}

func (w *MetricsWrapper) PredictionErrorsInc(model, reason string) {
	w.m.PredictionErrors.WithLabelValues(model, reason).Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) PredictionScoresObserve(model string, raw float64) {
	w.m.PredictionScores.WithLabelValues(model).Observe(raw)
}

func (w *MetricsWrapper) FetchRetriesInc() {
	w.m.FetchRetries.Inc()
}

// Scheduler

func (w *MetricsWrapper) ScheduledRunsInc(model, status string) {
	w.m.ScheduledRuns.WithLabelValues(model, status).Inc()
}
