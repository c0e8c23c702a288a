package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/draftea/order-system/order-service/application"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteWait = time.Second

// StreamOrderStatus handles GET /orders/stream/{orderId} as server-sent events
func (h *OrderHandlers) StreamOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	rc := http.NewResponseController(w)

	started := false
	err := h.streamOrderStatus.Execute(r.Context(), orderID, func(e application.StatusEvent) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		return rc.Flush()
	})

	switch {
	case err != nil && !started:
		writeError(w, h.logger, err, nil)
	case err != nil:
		h.logger.Debug("status stream closed", zap.String("order_id", orderID), zap.Error(err))
	case !started:
		// expired or cancelled before the first frame
		w.WriteHeader(http.StatusNoContent)
	}
}

// WatchOrderStatus handles GET /orders/ws/{orderId}, the WebSocket variant of the status stream
func (h *OrderHandlers) WatchOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	// answer unknown orders before switching protocols
	if _, err := h.getOrderStatus.Execute(r.Context(), orderID); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the read side only detects the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.streamOrderStatus.Execute(ctx, orderID, func(e application.StatusEvent) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(e)
	})
	if err != nil {
		h.logger.Debug("status socket closed", zap.String("order_id", orderID), zap.Error(err))
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWait))
}
