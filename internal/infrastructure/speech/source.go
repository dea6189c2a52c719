// Package speech reads recognizer output from a client websocket. Speech
// recognition itself happens upstream; this package only turns frames into
// partial, transcript and stop events.
package speech

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType is the kind of a speech event
type EventType string

const (
	EventPartial    EventType = "partial"
	EventTranscript EventType = "transcript"
	EventStop       EventType = "stop"
)

// Event is one decoded speech event
type Event struct {
	Type      EventType
	Text      string
	Timestamp time.Time
}

// Conn abstracts a WebSocket connection for testability
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type envelope struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Timestamp string          `json:"timestamp"`
	Data      *envelopeDetail `json:"data"`
}

type envelopeDetail struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Decode turns one websocket frame into an event. Frames that carry nothing
// usable (binary audio, unknown types, empty text) report ok=false.
func Decode(messageType int, data []byte) (Event, bool) {
	if messageType != gorillawebsocket.TextMessage {
		return Event{}, false
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return Event{}, false
	}
	if raw == string(EventStop) {
		return Event{Type: EventStop}, true
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Event{}, false
	}

	text, ts := env.Text, env.Timestamp
	if env.Data != nil {
		if text == "" {
			text = env.Data.Text
		}
		if ts == "" {
			ts = env.Data.Timestamp
		}
	}
	text = strings.TrimSpace(text)

	switch EventType(env.Type) {
	case EventStop:
		return Event{Type: EventStop}, true
	case EventPartial:
		if text == "" {
			return Event{}, false
		}
		return Event{Type: EventPartial, Text: text}, true
	case EventTranscript:
		if text == "" {
			return Event{}, false
		}
		return Event{Type: EventTranscript, Text: text, Timestamp: parseTimestamp(ts)}, true
	}
	return Event{}, false
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// WebSocketSource streams events from a client connection
type WebSocketSource struct {
	conn   Conn
	logger *zap.Logger
}

// NewWebSocketSource wraps conn
func NewWebSocketSource(conn Conn, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{conn: conn, logger: logger}
}

// Events reads frames until a stop event, a read error or ctx is done. The
// channel is closed afterwards; a close without a preceding stop event means
// the client went away.
func (s *WebSocketSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			messageType, data, err := s.conn.ReadMessage()
			if err != nil {
				if s.logger != nil && !gorillawebsocket.IsCloseError(err, gorillawebsocket.CloseNormalClosure, gorillawebsocket.CloseGoingAway) {
					s.logger.Debug("🔌 Speech stream read ended", zap.Error(err))
				}
				return
			}

			ev, ok := Decode(messageType, data)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == EventStop {
				return
			}
		}
	}()
	return out
}
