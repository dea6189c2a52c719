package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	dto "github.com/johnquangdev/clinical-scribe/internal/adapter/dto/session"
	"github.com/johnquangdev/clinical-scribe/internal/adapter/presenter"
	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/speech"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/session"
)

// SessionSocket runs one consultation per websocket connection
type SessionSocket struct {
	service  SessionService
	upgrader gorillawebsocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionSocket creates the socket handler. An empty origin list or a
// "*" entry allows any origin.
func NewSessionSocket(service SessionService, allowedOrigins []string, logger *zap.Logger) *SessionSocket {
	return &SessionSocket{
		service: service,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
		now:    time.Now,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Handle upgrades GET /ws/session. The client may pick the session id with
// ?session_id=, otherwise one is generated.
func (h *SessionSocket) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	id := c.QueryParam("session_id")
	if id == "" {
		id = session.NewID(h.now())
	}

	// the request context ends with the handler, finalization must not
	h.Serve(context.WithoutCancel(c.Request().Context()), ws, id)
	return nil
}

// Serve drives one session over conn until the client sends stop or goes
// away. Stop finalizes the session; a disconnect abandons it.
func (h *SessionSocket) Serve(ctx context.Context, conn speech.Conn, id string) {
	if _, err := h.service.Start(id); err != nil {
		if h.logger != nil {
			h.logger.Warn("⚠️ Session start rejected", zap.String("session_id", id), zap.Error(err))
		}
		h.send(conn, id, dto.ErrorMessage{Type: dto.MessageError, Message: err.Error()})
		return
	}
	h.send(conn, id, dto.SessionMessage{Type: dto.MessageSession, SessionID: id})

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for ev := range speech.NewWebSocketSource(conn, h.logger).Events(readCtx) {
		switch ev.Type {
		case speech.EventPartial:
			h.send(conn, id, dto.PartialMessage{Type: dto.MessagePartial, Text: ev.Text})

		case speech.EventTranscript:
			u, err := h.service.AddTranscript(id, ev.Text, ev.Timestamp)
			if err != nil {
				if h.logger != nil {
					h.logger.Warn("⚠️ Transcript dropped", zap.String("session_id", id), zap.Error(err))
				}
				continue
			}
			h.send(conn, id, presenter.ToTranscriptMessage(u))

		case speech.EventStop:
			res, err := h.service.Finalize(ctx, id)
			if err != nil {
				if h.logger != nil {
					h.logger.Error("❌ Finalization failed", zap.String("session_id", id), zap.Error(err))
				}
				h.send(conn, id, dto.ErrorMessage{Type: dto.MessageError, Message: err.Error()})
				return
			}
			h.send(conn, id, presenter.ToStructuredMessage(res))
			_ = conn.WriteMessage(gorillawebsocket.CloseMessage,
				gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, "session finalized"))
			return
		}
	}

	h.service.Abandon(id)
}

func (h *SessionSocket) send(conn speech.Conn, id string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("❌ Failed to encode socket message", zap.String("session_id", id), zap.Error(err))
		}
		return
	}
	if err := conn.WriteMessage(gorillawebsocket.TextMessage, data); err != nil && h.logger != nil {
		h.logger.Debug("🔌 Socket write failed", zap.String("session_id", id), zap.Error(err))
	}
}
