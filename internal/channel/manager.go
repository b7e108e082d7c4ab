// ABOUTME: Session-scoped event channel manager with acquire/release lifecycle
// ABOUTME: Owns subscriptions by event name so they survive reconnects

package channel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/metrics"
)

// ErrNoCredential is returned by Acquire when no session credential is
// available. No connection is opened in that case.
var ErrNoCredential = errors.New("no session credential")

const (
	defaultReconnectMin     = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	dedupeWindowSize        = 1024
)

// Handler receives the raw JSON payload of an event. Events pushed without
// arguments deliver a nil payload.
type Handler func(payload json.RawMessage)

// Subscription identifies one registered handler.
type Subscription struct {
	ID    string
	Event string
}

// TokenSource supplies the current session credential; "" means none.
type TokenSource interface {
	Token() string
}

// Options configures a Manager.
type Options struct {
	// URL is the socket endpoint, e.g. http://localhost:4000/chat.
	URL string
	// Namespace overrides the namespace taken from the URL path.
	Namespace string

	Dialer           Dialer
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	// DedupeWindow suppresses identical message event frames repeated within
	// the window. Zero disables suppression.
	DedupeWindow time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type subscriber struct {
	id      string
	handler Handler
}

// Manager maintains at most one live event connection per session.
type Manager struct {
	creds     TokenSource
	opts      Options
	engineURL string
	namespace string
	dedupe    *dedupe.Window
	logger    *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]subscriber // event name -> subscribers in registration order
	handle *Handle
}

// NewManager validates the endpoint and creates an idle manager. Nothing is
// dialed until Acquire.
func NewManager(creds TokenSource, opts Options) (*Manager, error) {
	engineURL, ns, err := ParseEndpoint(opts.URL, opts.Namespace)
	if err != nil {
		return nil, err
	}

	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{HandshakeTimeout: opts.HandshakeTimeout}
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = defaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		creds:     creds,
		opts:      opts,
		engineURL: engineURL,
		namespace: ns,
		dedupe:    dedupe.New(opts.DedupeWindow, dedupeWindowSize),
		logger:    logger.With("component", "channel", "namespace", ns),
		subs:      make(map[string][]subscriber),
	}, nil
}

// Acquire returns the shared connection handle, creating and connecting it on
// the first call. Without a credential it returns ErrNoCredential and opens
// nothing. When the credential changed since the handle last authenticated,
// the handle's credential is replaced in place and, if currently
// disconnected, a reconnect is attempted immediately.
func (m *Manager) Acquire() (*Handle, error) {
	token := m.creds.Token()
	if token == "" {
		m.logger.Warn("no session credential, not opening event channel")
		return nil, ErrNoCredential
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		m.handle = newHandle(m, token)
		m.logger.Info("opening event channel", "url", m.engineURL)
		go m.handle.run()
		return m.handle, nil
	}

	m.handle.refresh(token)
	return m.handle, nil
}

// Current returns the live handle, or nil before Acquire / after Release.
func (m *Manager) Current() *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Release ends the session: the connection is closed and every subscription
// dropped. A later Acquire starts a fresh session. Release waits for the
// connection goroutine, so a Handler must not call it synchronously.
func (m *Manager) Release() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.subs = make(map[string][]subscriber)
	m.mu.Unlock()

	if h != nil {
		h.close()
		m.logger.Info("event channel released")
	}
	m.dedupe.Reset()
}

// drop ends the session from the handle's own goroutine once its credential
// is gone. It does not wait on the handle, which is about to exit.
func (m *Manager) drop(h *Handle) {
	m.mu.Lock()
	if m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.subs = make(map[string][]subscriber)
	m.mu.Unlock()

	h.cancel()
	m.dedupe.Reset()
	m.logger.Info("event channel released")
}

// Subscribe registers h for events named event. Several handlers may share a
// name; each is invoked once per delivered event.
func (m *Manager) Subscribe(event string, h Handler) Subscription {
	sub := Subscription{ID: uuid.New().String(), Event: event}

	m.mu.Lock()
	m.subs[event] = append(m.subs[event], subscriber{id: sub.ID, handler: h})
	m.mu.Unlock()

	m.logger.Debug("subscriber added", "event", event, "sub_id", sub.ID)
	return sub
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[sub.Event]
	for i, s := range subs {
		if s.id != sub.ID {
			continue
		}
		subs = append(subs[:i:i], subs[i+1:]...)
		if len(subs) == 0 {
			delete(m.subs, sub.Event)
		} else {
			m.subs[sub.Event] = subs
		}
		m.logger.Debug("subscriber removed", "event", sub.Event, "sub_id", sub.ID)
		return
	}
}

// deliver routes a server-pushed event through the dedupe window. Only
// message events with a payload are suppressed; bare signals such as
// contacts_updated carry no identity and every one of them is delivered.
func (m *Manager) deliver(event string, payload json.RawMessage) {
	if suppressible(event, payload) && !m.dedupe.Admit(event, payload) {
		m.opts.Metrics.DuplicateSuppressed()
		m.logger.Debug("suppressed duplicate event", "event", event)
		return
	}
	m.opts.Metrics.EventReceived(event)
	m.dispatch(event, payload)
}

func suppressible(event string, payload json.RawMessage) bool {
	if len(payload) == 0 || string(payload) == "null" {
		return false
	}
	return slices.Contains(chat.MessageEvents, event)
}

// dispatch invokes the handlers registered for event. The handler list is
// copied so handlers may subscribe or unsubscribe.
func (m *Manager) dispatch(event string, payload json.RawMessage) {
	m.mu.RLock()
	subs := append([]subscriber(nil), m.subs[event]...)
	m.mu.RUnlock()

	for _, s := range subs {
		s.handler(payload)
	}
}

// health publishes a locally generated channel state event.
func (m *Manager) health(event string, fields map[string]string) {
	payload, _ := json.Marshal(fields)
	m.dispatch(event, payload)
}

// HealthPayload is the shape of connect / disconnect / connect_error payloads.
type HealthPayload struct {
	SID     string `json:"sid,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthEvents lists the locally generated event names.
var HealthEvents = []string{chat.EventConnect, chat.EventDisconnect, chat.EventConnectError}
