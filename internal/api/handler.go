package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"trendcast/internal/ml"
	"trendcast/internal/predict"
	"trendcast/internal/storage"
)

// Predictor runs one prediction.
type Predictor interface {
	Predict(ctx context.Context, model string, data []float64) (*predict.Result, error)
}

// Models exposes the closed set of registered models.
type Models interface {
	Spec(name string) (ml.ModelSpec, error)
	Status() []ml.ModelStatus
}

// History records and lists completed predictions.
type History interface {
	StorePrediction(rec storage.PredictionRecord) error
	LatestPredictions(model string, limit int) ([]storage.PredictionRecord, error)
}

// Handler serves the prediction API.
type Handler struct {
	service      Predictor
	models       Models
	history      History
	defaultModel string
	streamEvery  time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler wires the handlers. history may be nil, in which case nothing
// is recorded and the history route is not registered.
func NewHandler(service Predictor, models Models, history History, defaultModel string) *Handler {
	return &Handler{
		service:      service,
		models:       models,
		history:      history,
		defaultModel: defaultModel,
		streamEvery:  30 * time.Second,
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS middleware configuration.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetStreamInterval changes the push interval used when a stream request
// does not name one.
func (h *Handler) SetStreamInterval(d time.Duration) {
	if d > 0 {
		h.streamEvery = d
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/prediction", h.LegacyPredict)

	g := e.Group("/v1/models")
	g.GET("", h.ListModels)
	g.POST("/:model/predict", h.Predict)
	g.GET("/:model/stream", h.Stream)
	if h.history != nil {
		g.GET("/:model/history", h.History)
	}
}

func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "Prediction API is running"})
}

// Health reports unavailable only when every model has failed to load.
func (h *Handler) Health(c echo.Context) error {
	models := h.models.Status()
	failed := 0
	loaded := 0
	for _, m := range models {
		switch {
		case m.Loaded:
			loaded++
		case m.Error != "":
			failed++
		}
	}

	resp := HealthResponse{Status: "ok", Models: models}
	switch {
	case len(models) > 0 && failed == len(models):
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	case failed > 0:
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.models.Status())
}

func (h *Handler) Predict(c echo.Context) error {
	req := &PredictRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	return h.predict(c, req.Model, req.Data)
}

// LegacyPredict serves POST /prediction for the default model.
func (h *Handler) LegacyPredict(c echo.Context) error {
	req := &PredictRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	return h.predict(c, h.defaultModel, req.Data)
}

func (h *Handler) predict(c echo.Context, model string, data []float64) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	res, err := h.service.Predict(c.Request().Context(), model, data)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Str("request_id", requestID).Msg("Prediction failed")
		return AppErrorResponse(c, err)
	}

	spec, err := h.models.Spec(model)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	h.record(res, requestID, "api")
	return c.JSON(http.StatusOK, newPredictionResponse(res, spec, requestID))
}

func (h *Handler) History(c echo.Context) error {
	req := &HistoryRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	if _, err := h.models.Spec(req.Model); err != nil {
		return AppErrorResponse(c, err)
	}

	records, err := h.history.LatestPredictions(req.Model, req.Limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if records == nil {
		records = []storage.PredictionRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// record appends a completed prediction to the history store. Failures are
// logged and do not affect the response.
func (h *Handler) record(res *predict.Result, requestID, trigger string) {
	if h.history == nil {
		return
	}
	rec := storage.NewPredictionRecord(res, requestID, trigger)
	if err := h.history.StorePrediction(rec); err != nil {
		log.Error().Err(err).Str("model", res.Model).Msg("Failed to record prediction")
	}
}
