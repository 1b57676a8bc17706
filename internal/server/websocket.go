package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farcloser/tocsin/internal/inference"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket streams predictions: every binary message is one clip whose MIME type comes from the "mime"
// query parameter; text messages carry the same JSON document as /predict. Each message gets one JSON reply.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.originAllowed}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("server: websocket upgrade failed", "error", err)

		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.maxBodySize)
	_ = conn.SetReadDeadline(time.Time{})

	mimeType := r.URL.Query().Get("mime")
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("server: websocket read", "error", err)
			}

			return
		}

		var (
			input inference.Input
			meta  origin
		)

		switch kind {
		case websocket.BinaryMessage:
			input = inference.BlobInput{Data: payload, MIMEType: mimeType}
		case websocket.TextMessage:
			var body predictRequest
			if err = json.Unmarshal(payload, &body); err == nil {
				input, meta, err = s.jsonInput(&body)
			}
		default:
			continue
		}

		var result *inference.Result

		if err != nil {
			err = fmt.Errorf("%w: %w", inference.ErrBadInput, err)
		} else {
			result, err = s.service.Infer(r.Context(), input)
		}

		if err != nil && !errors.Is(err, inference.ErrBadInput) {
			slog.Warn("server: websocket prediction failed", "error", err)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

		if err = conn.WriteJSON(s.predictionBody(r, result, meta, err)); err != nil {
			return
		}
	}
}
