package cdp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// commandHandler produces the response for one received command. Returning
// ok=false leaves the command unanswered.
type commandHandler func(msg Message) (response Message, ok bool)

// echoResult answers every command with the given result payload.
func echoResult(result string) commandHandler {
	return func(msg Message) (Message, bool) {
		return Message{ID: msg.ID, SessionID: msg.SessionID, Result: json.RawMessage(result)}, true
	}
}

// testServer is a fake DevTools endpoint: one WebSocket route that answers
// commands through a handler and can push arbitrary messages mid-session.
type testServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	handler  commandHandler
	conn     *websocket.Conn
	received []Message
}

func newTestServer(t *testing.T, handler commandHandler) *testServer {
	t.Helper()
	ts := &testServer{t: t, handler: handler}

	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()

		for {
			_, buf, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(buf, &msg); err != nil {
				continue
			}
			ts.mu.Lock()
			ts.received = append(ts.received, msg)
			handler := ts.handler
			ts.mu.Unlock()

			if handler == nil {
				continue
			}
			if resp, ok := handler(msg); ok {
				ts.write(resp)
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

// setHandler swaps the command handler mid-session.
func (ts *testServer) setHandler(handler commandHandler) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.handler = handler
}

// push sends an unsolicited message (e.g. an event) to the client.
func (ts *testServer) push(msg Message) {
	ts.write(msg)
}

func (ts *testServer) write(msg Message) {
	buf, err := json.Marshal(msg)
	if err != nil {
		ts.t.Errorf("marshaling server message: %s", err)
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.conn != nil {
		_ = ts.conn.WriteMessage(websocket.TextMessage, buf)
	}
}

// dropConnection closes the socket without a close handshake, simulating a
// browser crash.
func (ts *testServer) dropConnection() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.conn != nil {
		_ = ts.conn.Close()
	}
}

func (ts *testServer) receivedMessages() []Message {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Message, len(ts.received))
	copy(out, ts.received)
	return out
}
