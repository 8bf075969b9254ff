package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/service/pipeline"
)

// wsMessage is one frame sent to a WebSocket client: either a run result
// or an error in the same envelope the REST API uses.
type wsMessage struct {
	Data  any                `json:"data,omitempty"`
	Error *model.ErrorDetail `json:"error,omitempty"`
	Meta  model.ResponseMeta `json:"meta"`
}

// HandleWebSocket returns the /ws handler. Each inbound JSON ChatRequest
// runs the pipeline and is answered with one frame. Connections are
// served sequentially per client and end when the client disconnects or
// the request context is cancelled.
func (h *Handlers) HandleWebSocket() http.Handler {
	return websocket.Server{
		Handshake: func(cfg *websocket.Config, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if !originAllowed(h.corsOrigins, origin) {
				return fmt.Errorf("origin %q not allowed", origin)
			}
			return nil
		},
		Handler: h.serveWebSocket,
	}
}

func (h *Handlers) serveWebSocket(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	r := conn.Request()
	ctx := r.Context()
	reqID := RequestIDFromContext(ctx)
	conn.MaxPayloadBytes = int(h.maxRequestBodyBytes)
	// A hijacked connection keeps the server's read and write deadlines.
	_ = conn.SetDeadline(time.Time{})

	h.logger.Debug("ws: client connected", "request_id", reqID, "remote", r.RemoteAddr)
	defer h.logger.Debug("ws: client disconnected", "request_id", reqID)

	meta := func() model.ResponseMeta {
		return model.ResponseMeta{RequestID: reqID, Timestamp: time.Now().UTC()}
	}
	sendErr := func(code, msg string) error {
		return websocket.JSON.Send(conn, wsMessage{Error: &model.ErrorDetail{Code: code, Message: msg}, Meta: meta()})
	}

	for {
		var req model.ChatRequest
		if err := websocket.JSON.Receive(conn, &req); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			if sendErr(model.ErrCodeInvalidInput, "invalid message: "+err.Error()) != nil {
				return
			}
			continue
		}
		if err := validateChat(req); err != nil {
			if sendErr(model.ErrCodeInvalidInput, err.Error()) != nil {
				return
			}
			continue
		}

		res, err := h.pipeline.Execute(ctx, chatToRequest(req))
		if err != nil {
			code := model.ErrCodePipelineError
			if errors.Is(err, pipeline.ErrUnknownRegion) || errors.Is(err, pipeline.ErrUnknownCrop) {
				code = model.ErrCodeInvalidInput
			}
			if sendErr(code, err.Error()) != nil {
				return
			}
			continue
		}
		if err := websocket.JSON.Send(conn, wsMessage{Data: res, Meta: meta()}); err != nil {
			h.logger.Warn("ws: send failed", "request_id", reqID, "error", err)
			return
		}
	}
}
