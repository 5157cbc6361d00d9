package api

import (
	"time"

	"trendcast/internal/ml"
	"trendcast/internal/predict"
)

// PredictRequest is the body of a prediction call. Omitting data (or
// sending null) asks the service to fetch live market data.
type PredictRequest struct {
	Model string    `param:"model" json:"-"`
	Data  []float64 `json:"data" validate:"omitempty,max=1000"`
}

// StreamRequest selects the push interval in seconds. Zero means the
// server's configured default.
type StreamRequest struct {
	Model    string `param:"model" json:"-"`
	Interval int    `query:"interval" validate:"omitempty,gte=1,lte=3600"`
}

type HistoryRequest struct {
	Model string `param:"model" json:"-"`
	Limit int    `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

// PredictionResponse keeps the prediction/tokenToBuy/value contract of the
// public API. tokenToBuy is null for a negative trend.
type PredictionResponse struct {
	Model      string         `json:"model"`
	Version    string         `json:"version"`
	Prediction ml.Label       `json:"prediction"`
	TokenToBuy *string        `json:"tokenToBuy"`
	Value      float64        `json:"value"`
	Confidence *float64       `json:"confidence,omitempty"`
	Source     predict.Source `json:"source"`
	RequestID  string         `json:"requestId,omitempty"`
	At         time.Time      `json:"at"`
}

// StreamMessage is one frame on the prediction stream.
type StreamMessage struct {
	Type       string              `json:"type"` // prediction or error
	Prediction *PredictionResponse `json:"prediction,omitempty"`
	Error      *AppError           `json:"error,omitempty"`
}

type HealthResponse struct {
	Status string           `json:"status"`
	Models []ml.ModelStatus `json:"models"`
}

func newPredictionResponse(res *predict.Result, spec ml.ModelSpec, requestID string) *PredictionResponse {
	resp := &PredictionResponse{
		Model:      res.Model,
		Version:    res.Version,
		Prediction: res.Label,
		Value:      res.Value,
		Confidence: res.Confidence,
		Source:     res.Source,
		RequestID:  requestID,
		At:         res.At,
	}
	if res.Label == ml.Positive && spec.Token != "" {
		token := spec.Token
		resp.TokenToBuy = &token
	}
	return resp
}
