// ABOUTME: In-process socket.io test server built on httptest and gorilla/websocket
// ABOUTME: Accepts or refuses namespace connects by token and pushes events on demand

package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

type testServer struct {
	t         *testing.T
	srv       *httptest.Server
	namespace string

	mu      sync.Mutex
	allowed map[string]bool
	tokens  []string // tokens presented in connect packets, in order
	conns   []*websocket.Conn
	dials   int
}

func newTestServer(t *testing.T, namespace string, allowed ...string) *testServer {
	t.Helper()
	ts := &testServer{
		t:         t,
		namespace: namespace,
		allowed:   make(map[string]bool),
	}
	for _, tok := range allowed {
		ts.allowed[tok] = true
	}

	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/socket.io/") || r.URL.Query().Get("EIO") != "4" {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.serve(conn)
	}))
	t.Cleanup(ts.close)
	return ts
}

func (ts *testServer) URL() string {
	return ts.srv.URL + ts.namespace
}

func (ts *testServer) allow(token string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.allowed[token] = true
}

func (ts *testServer) serve(conn *websocket.Conn) {
	ts.mu.Lock()
	ts.dials++
	ts.mu.Unlock()

	open := `0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		conn.Close()
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	p, err := decodePacket(strings.TrimPrefix(string(data), "4"))
	if err != nil || p.Type != sioConnect {
		conn.Close()
		return
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(p.Data, &auth)

	ts.mu.Lock()
	ts.tokens = append(ts.tokens, auth.Token)
	ok := ts.allowed[auth.Token]
	ts.mu.Unlock()

	prefix := namespacePrefix(ts.namespace)
	if !ok {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`44`+prefix+`{"message":"unauthorized"}`))
		conn.Close()
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`40`+prefix+`{"sid":"sock-1"}`)); err != nil {
		conn.Close()
		return
	}

	ts.mu.Lock()
	ts.conns = append(ts.conns, conn)
	ts.mu.Unlock()

	// Drain client frames (pongs) until the connection goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// emit pushes an event to every live connection.
func (ts *testServer) emit(name string, payload any) {
	ts.t.Helper()
	frame, err := encodeEvent(ts.namespace, name, payload)
	if err != nil {
		ts.t.Fatalf("encoding event: %v", err)
	}
	ts.emitRaw(frame)
}

func (ts *testServer) emitRaw(frame string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// dropAll closes every live connection from the server side.
func (ts *testServer) dropAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		c.Close()
	}
	ts.conns = nil
}

func (ts *testServer) liveConns() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

func (ts *testServer) seenTokens() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.tokens...)
}

func (ts *testServer) dialCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.dials
}

func (ts *testServer) close() {
	ts.dropAll()
	ts.srv.Close()
}
