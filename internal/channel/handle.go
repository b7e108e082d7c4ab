// ABOUTME: One logical connection: dial, namespace handshake, read loop and reconnect
// ABOUTME: Credential is swapped in place; reconnects back off exponentially

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2389/coven-chat/internal/chat"
)

// Engine.io defaults when the open packet omits them.
const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

var errServerClosed = errors.New("server closed the connection")

// ConnectError is a namespace connect refused by the server, typically an
// authentication failure.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return "namespace connect refused: " + e.Message
}

// Handle is the live connection of a session. It reconnects on its own until
// the owning Manager releases it.
type Handle struct {
	m *Manager

	mu        sync.Mutex
	token     string // credential for the next connect
	connected bool
	sid       string

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newHandle(m *Manager, token string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		m:      m,
		token:  token,
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Connected reports whether the namespace handshake has completed on the
// current connection.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// SID returns the socket id of the current connection, "" when disconnected.
func (h *Handle) SID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sid
}

// Token returns the credential that will be used for the next connect.
func (h *Handle) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Done is closed once the handle has been released and its goroutine exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) refresh(token string) {
	h.mu.Lock()
	if token == h.token {
		h.mu.Unlock()
		return
	}
	h.token = token
	connected := h.connected
	h.mu.Unlock()

	h.m.logger.Info("session credential changed", "connected", connected)
	if !connected {
		select {
		case h.kick <- struct{}{}:
		default:
		}
	}
}

func (h *Handle) close() {
	h.cancel()
	<-h.done
}

func (h *Handle) setConnected(up bool, sid string) {
	h.mu.Lock()
	h.connected = up
	h.sid = sid
	h.mu.Unlock()
	h.m.opts.Metrics.SetConnected(up)
}

// run connects and reconnects until the handle is closed.
func (h *Handle) run() {
	defer close(h.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.m.opts.ReconnectMin
	bo.MaxInterval = h.m.opts.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if h.m.creds.Token() == "" {
				h.m.logger.Warn("session credential gone, ending event channel")
				h.m.drop(h)
				return
			}
			h.m.opts.Metrics.Reconnect()
		}

		established, err := h.connectOnce(h.ctx)
		if h.ctx.Err() != nil {
			return
		}

		if established {
			bo.Reset()
			h.m.logger.Warn("event channel disconnected", "error", err)
			h.m.health(chat.EventDisconnect, map[string]string{"reason": errString(err)})
		} else {
			h.m.opts.Metrics.ConnectError()
			h.m.logger.Warn("event channel connect failed", "error", err, "attempt", attempt+1)
			h.m.health(chat.EventConnectError, map[string]string{"message": errString(err)})
		}

		wait := bo.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-h.ctx.Done():
			timer.Stop()
			return
		case <-h.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// connectOnce runs one connection from dial to disconnect. established is
// true when the namespace handshake succeeded before the connection ended.
func (h *Handle) connectOnce(ctx context.Context) (established bool, err error) {
	token := h.Token()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := h.m.opts.Dialer.Dial(ctx, h.m.engineURL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	open, err := readOpen(conn)
	if err != nil {
		return false, err
	}

	connect, err := encodeConnect(h.m.namespace, map[string]string{"token": token})
	if err != nil {
		return false, err
	}
	if err := conn.WriteText(connect); err != nil {
		return false, fmt.Errorf("sending namespace connect: %w", err)
	}

	sid, err := h.awaitConnect(conn)
	if err != nil {
		return false, err
	}

	h.setConnected(true, sid)
	defer h.setConnected(false, "")
	h.m.logger.Info("event channel connected", "sid", sid)
	h.m.health(chat.EventConnect, map[string]string{"sid": sid})

	return true, h.readLoop(conn, open)
}

func readOpen(conn Conn) (openPayload, error) {
	frame, err := conn.ReadText()
	if err != nil {
		return openPayload{}, fmt.Errorf("reading open packet: %w", err)
	}
	if frame == "" || frame[0] != eioOpen {
		return openPayload{}, fmt.Errorf("%w: expected open packet, got %q", ErrProtocol, truncate(frame, 40))
	}

	var open openPayload
	if err := json.Unmarshal([]byte(frame[1:]), &open); err != nil {
		return openPayload{}, fmt.Errorf("%w: open payload: %v", ErrProtocol, err)
	}
	return open, nil
}

// awaitConnect waits for the namespace CONNECT (or CONNECT_ERROR), answering
// pings meanwhile.
func (h *Handle) awaitConnect(conn Conn) (string, error) {
	timer := time.AfterFunc(h.m.opts.HandshakeTimeout, func() { conn.Close() })
	defer timer.Stop()

	for {
		frame, err := conn.ReadText()
		if err != nil {
			return "", fmt.Errorf("awaiting namespace connect: %w", err)
		}
		if frame == "" {
			continue
		}

		switch frame[0] {
		case eioPing:
			if err := conn.WriteText(string(eioPong)); err != nil {
				return "", fmt.Errorf("sending pong: %w", err)
			}
		case eioClose:
			return "", errServerClosed
		case eioMessage:
			p, err := decodePacket(frame[1:])
			if err != nil {
				h.m.logger.Debug("ignoring undecodable packet during handshake", "error", err)
				continue
			}
			if p.Namespace != h.m.namespace {
				continue
			}
			switch p.Type {
			case sioConnect:
				var body struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(p.Data, &body)
				return body.SID, nil
			case sioConnectError:
				return "", &ConnectError{Message: connectErrorMessage(p.Data)}
			}
		}
	}
}

// readLoop dispatches events until the connection fails. The connection is
// dropped when no frame arrives within pingInterval+pingTimeout.
func (h *Handle) readLoop(conn Conn, open openPayload) error {
	idle := defaultPingInterval + defaultPingTimeout
	if open.PingInterval > 0 && open.PingTimeout > 0 {
		idle = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	}
	watchdog := time.AfterFunc(idle, func() {
		h.m.logger.Debug("no frames within ping timeout, closing", "idle", idle)
		conn.Close()
	})
	defer watchdog.Stop()

	for {
		frame, err := conn.ReadText()
		if err != nil {
			return err
		}
		watchdog.Reset(idle)
		if frame == "" {
			continue
		}

		switch frame[0] {
		case eioPing:
			if err := conn.WriteText(string(eioPong)); err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}
		case eioClose:
			return errServerClosed
		case eioMessage:
			if err := h.handlePacket(frame[1:]); err != nil {
				return err
			}
		}
	}
}

// handlePacket dispatches EVENT packets for our namespace. A DISCONNECT from
// the server ends the connection; undecodable packets are skipped.
func (h *Handle) handlePacket(body string) error {
	p, err := decodePacket(body)
	if err != nil {
		h.m.logger.Debug("ignoring undecodable packet", "error", err)
		return nil
	}
	if p.Namespace != h.m.namespace {
		return nil
	}

	switch p.Type {
	case sioEvent:
		name, payload, err := decodeEventData(p.Data)
		if err != nil {
			h.m.logger.Debug("ignoring malformed event", "error", err)
			return nil
		}
		h.m.deliver(name, payload)
	case sioDisconnect:
		return errors.New("namespace disconnected by server")
	case sioBinaryEvent:
		h.m.logger.Debug("ignoring binary event")
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
