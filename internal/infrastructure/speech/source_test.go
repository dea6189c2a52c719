package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	text := gorillawebsocket.TextMessage

	tests := []struct {
		name  string
		mt    int
		frame string
		want  Event
		ok    bool
	}{
		{"plain stop", text, " stop\n", Event{Type: EventStop}, true},
		{"json stop", text, `{"type":"stop"}`, Event{Type: EventStop}, true},
		{"partial", text, `{"type":"partial","text":"I have"}`, Event{Type: EventPartial, Text: "I have"}, true},
		{"transcript", text, `{"type":"transcript","text":" I have fever "}`, Event{Type: EventTranscript, Text: "I have fever"}, true},
		{"nested transcript", text, `{"type":"transcript","data":{"text":"since Monday","timestamp":"2025-06-01T09:00:00Z"}}`,
			Event{Type: EventTranscript, Text: "since Monday", Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}, true},
		{"empty transcript", text, `{"type":"transcript","text":"  "}`, Event{}, false},
		{"unknown type", text, `{"type":"ping"}`, Event{}, false},
		{"not json", text, `hello`, Event{}, false},
		{"binary audio", gorillawebsocket.BinaryMessage, "stop", Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.mt, []byte(tt.frame))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type frame struct {
	mt   int
	data string
}

type scriptedConn struct {
	frames []frame
	err    error
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	if len(c.frames) == 0 {
		return 0, nil, c.err
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f.mt, []byte(f.data), nil
}

func (c *scriptedConn) WriteMessage(int, []byte) error { return nil }
func (c *scriptedConn) Close() error                   { return nil }

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func TestEvents_StopsAfterStop(t *testing.T) {
	conn := &scriptedConn{frames: []frame{
		{gorillawebsocket.BinaryMessage, "\x00\x01"},
		{gorillawebsocket.TextMessage, `{"type":"transcript","text":"I have fever"}`},
		{gorillawebsocket.TextMessage, "stop"},
		{gorillawebsocket.TextMessage, `{"type":"transcript","text":"never read"}`},
	}}

	events := collect(t, NewWebSocketSource(conn, nil).Events(context.Background()))
	require.Len(t, events, 2)
	assert.Equal(t, EventTranscript, events[0].Type)
	assert.Equal(t, EventStop, events[1].Type)
	assert.Len(t, conn.frames, 1)
}

func TestEvents_ClosesOnReadError(t *testing.T) {
	conn := &scriptedConn{
		frames: []frame{{gorillawebsocket.TextMessage, `{"type":"partial","text":"I"}`}},
		err:    errors.New("connection reset"),
	}

	events := collect(t, NewWebSocketSource(conn, nil).Events(context.Background()))
	require.Len(t, events, 1)
	assert.Equal(t, EventPartial, events[0].Type)
}
