package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadLimit = 4 * 1024
)

// Stream pushes a live prediction for a model every interval seconds over a
// WebSocket until the client goes away. Failed predictions are sent as error
// frames and the stream continues.
func (h *Handler) Stream(c echo.Context) error {
	req := &StreamRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	spec, err := h.models.Spec(req.Model)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written an error response.
		log.Warn().Err(err).Str("model", req.Model).Msg("WebSocket upgrade failed")
		return nil
	}
	defer conn.Close()

	streamID := c.Response().Header().Get(echo.HeaderXRequestID)
	if streamID == "" {
		streamID = uuid.NewString()
	}
	interval := h.streamEvery
	if req.Interval > 0 {
		interval = time.Duration(req.Interval) * time.Second
	}
	log.Info().Str("model", req.Model).Str("stream_id", streamID).Dur("interval", interval).Msg("Prediction stream opened")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Reader: the client sends nothing we act on, but reading is required to
	// process control frames and notice disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	sent := 0
	for ctx.Err() == nil {
		msg := h.streamFrame(ctx, req.Model, streamID)
		if ctx.Err() != nil {
			break
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Str("stream_id", streamID).Msg("Prediction stream write failed")
			break
		}
		sent++

		if !waitTick(ctx, conn, ticker.C, pingTicker.C) {
			break
		}
	}

	log.Info().Str("model", spec.Name).Str("stream_id", streamID).Int("frames", sent).Msg("Prediction stream closed")
	return nil
}

// waitTick blocks until the next frame is due, sending keep-alive pings in
// the meantime. It returns false once the stream should stop.
func waitTick(ctx context.Context, conn *websocket.Conn, tick, ping <-chan time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ping:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return false
			}
		case <-tick:
			return true
		}
	}
}

func (h *Handler) streamFrame(ctx context.Context, model, streamID string) StreamMessage {
	res, err := h.service.Predict(ctx, model, nil)
	if err != nil {
		return StreamMessage{Type: "error", Error: FromError(err)}
	}
	spec, err := h.models.Spec(model)
	if err != nil {
		return StreamMessage{Type: "error", Error: FromError(err)}
	}
	h.record(res, streamID, "stream")
	return StreamMessage{Type: "prediction", Prediction: newPredictionResponse(res, spec, streamID)}
}
