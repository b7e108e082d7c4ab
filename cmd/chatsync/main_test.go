// ABOUTME: Tests for chatsync command wiring and rendering
// ABOUTME: Drives the watch loop against httptest REST and socket.io servers

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/credential"
)

func init() {
	color.NoColor = true
}

func msg(id int64, from, to, body string) chat.Message {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return chat.Message{
		ID:        id,
		Sender:    chat.Participant{Username: from},
		Receiver:  chat.Participant{Username: to},
		Body:      body,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("#42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "12abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatMessage(t *testing.T) {
	m := msg(7, "alice", "bob", "hello")
	line := formatMessage(m, "alice")
	assert.Contains(t, line, "#7")
	assert.Contains(t, line, "alice: hello")
	assert.NotContains(t, line, "(edited)")

	m.UpdatedAt = m.CreatedAt.Add(time.Minute)
	assert.Contains(t, formatMessage(m, "alice"), "(edited)")
}

func TestDiffMessages(t *testing.T) {
	prev := []chat.Message{msg(1, "alice", "bob", "one"), msg(2, "bob", "alice", "two")}
	edited := msg(2, "bob", "alice", "two!")
	cur := []chat.Message{edited, msg(3, "alice", "bob", "three")}

	lines := diffMessages(prev, cur, "alice")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "two!")
	assert.Contains(t, lines[1], "three")
	assert.Contains(t, lines[2], "#1")
	assert.Contains(t, lines[2], "deleted")

	assert.Empty(t, diffMessages(cur, cur, "alice"))
}

func TestRootCmd_ListsCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"watch", "send", "edit", "delete", "history", "contacts", "token", "journal"} {
		assert.Contains(t, names, want)
	}
}

// chatBackend fakes the REST API and a minimal socket.io /chat namespace.
type chatBackend struct {
	t        *testing.T
	mu       sync.Mutex
	sent     []string
	conns    []*websocket.Conn
	upgrader websocket.Upgrader
}

func (b *chatBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/socket.io/"):
		b.serveSocket(w, r)
	case r.URL.Path == "/api/chat/history":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []chat.Message{msg(1, "bob", "alice", "hi alice")},
		})
	case r.URL.Path == "/api/chat/send":
		var body struct {
			Receiver string `json:"receiverUsername"`
			Message  string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.sent = append(b.sent, body.Receiver+":"+body.Message)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		// Echo over the channel as the real server does.
		echo := msg(2, "alice", body.Receiver, body.Message)
		b.emit(chat.EventNewMessage, echo)
	case r.URL.Path == "/api/contact/list":
		_, _ = w.Write([]byte(`[{"id":2,"username":"bob"}]`))
	case r.URL.Path == "/api/contact/requests":
		_, _ = w.Write([]byte(`[]`))
	default:
		http.NotFound(w, r)
	}
}

func (b *chatBackend) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`))
	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`40/chat,{"sid":"sock-1"}`))

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *chatBackend) emit(event string, payload any) {
	data, _ := json.Marshal([]any{event, payload})
	frame := "42/chat," + string(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

func (b *chatBackend) connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns) > 0
}

// syncBuffer is a goroutine-safe output sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestRunWatch_EndToEnd(t *testing.T) {
	backend := &chatBackend{t: t}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("CHATSYNC_TOKEN", "opaque-token")

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
server:
  api_url: %q
  socket_url: %q
journal:
  enabled: true
logging:
  level: error
`, srv.URL+"/api", srv.URL+"/chat")), 0644))

	a := &app{configPath: cfgPath, as: "alice"}
	require.NoError(t, a.setup())
	defer a.close()

	inR, inW := io.Pipe()
	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, "bob", inR, out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "bob: hi alice")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, backend.connected, 5*time.Second, 10*time.Millisecond)

	_, err := io.WriteString(inW, "hello bob\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "alice: hello bob")
	}, 5*time.Second, 10*time.Millisecond)

	backend.mu.Lock()
	assert.Equal(t, []string{"bob:hello bob"}, backend.sent)
	backend.mu.Unlock()

	_, err = io.WriteString(inW, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit on /quit")
	}
	_ = inW.Close()

	j, closeJournal, err := a.openJournal()
	require.NoError(t, err)
	defer closeJournal()
	count, err := j.Count(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(2), "connect and new_message should be journaled")
}

func TestBindSession_ClearFromHandlerEndsSession(t *testing.T) {
	backend := &chatBackend{t: t}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	a := &app{
		logger: slog.New(slog.DiscardHandler),
		creds:  credential.NewSource("opaque-token", nil),
	}
	m, err := channel.NewManager(a.creds, channel.Options{
		URL:          srv.URL + "/chat",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer m.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.bindSession(ctx, m)

	// A rejected request inside a handler clears the credential.
	m.Subscribe(chat.EventNewMessage, func(json.RawMessage) { a.creds.Clear() })

	h, err := m.Acquire()
	require.NoError(t, err)
	require.Eventually(t, h.Connected, 5*time.Second, 10*time.Millisecond)

	backend.emit(chat.EventNewMessage, msg(1, "bob", "alice", "hi"))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session was not released")
	}
	assert.Nil(t, m.Current())
}

func TestBindSession_ExpiredTokenEndsSession(t *testing.T) {
	backend := &chatBackend{t: t}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "1",
		"username": "alice",
		"exp":      time.Now().Add(time.Second).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	a := &app{
		logger: slog.New(slog.DiscardHandler),
		creds:  credential.NewSource(token, nil),
	}
	m, err := channel.NewManager(a.creds, channel.Options{
		URL:          srv.URL + "/chat",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer m.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.bindSession(ctx, m)

	h, err := m.Acquire()
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session outlived its token")
	}
	assert.Nil(t, m.Current())
}
