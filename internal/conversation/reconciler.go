// ABOUTME: Reconciler merges a history snapshot with live channel events for one pair
// ABOUTME: A single loop goroutine owns the view; stale snapshots are discarded by generation

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/metrics"
)

const (
	defaultPageSize   = 50
	defaultMaxPending = 1000
	inboxSize         = 256
)

var (
	// ErrNoConversation is returned by Send, Edit and Delete before Open.
	ErrNoConversation = errors.New("no conversation open")
	// ErrSuperseded is returned by Open when another Open started before its
	// snapshot arrived. The snapshot was discarded.
	ErrSuperseded = errors.New("conversation superseded by a newer open")
	// ErrClosed is returned once the reconciler has been closed.
	ErrClosed = errors.New("reconciler closed")
)

// State is the lifecycle position of the current view.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Backend is the REST collaborator for history and message mutations.
type Backend interface {
	History(ctx context.Context, userA, userB string, page, limit int) ([]chat.Message, error)
	Send(ctx context.Context, receiver, body string) error
	Edit(ctx context.Context, id int64, body string) error
	Delete(ctx context.Context, id int64) error
}

// Events is the part of the channel manager the reconciler needs.
type Events interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
	Unsubscribe(sub channel.Subscription)
}

// Options tunes a Reconciler.
type Options struct {
	// PageSize is the history limit requested on Open. Defaults to 50.
	PageSize int
	// MaxPending caps events buffered while Loading; the oldest are dropped
	// beyond it. Defaults to 1000.
	MaxPending int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Snapshot is a point-in-time copy of the reconciler's state.
type Snapshot struct {
	Pair       chat.Pair
	State      State
	Messages   []chat.Message
	Err        error // set when the last history fetch failed
	Generation uint64
}

// Reconciler maintains the view of the currently open conversation.
type Reconciler struct {
	backend Backend
	events  Events
	opts    Options
	logger  *slog.Logger

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	subs      []channel.Subscription

	// Owned by the loop goroutine.
	view    *View
	state   State
	gen     uint64
	pending []chat.Event
	lastErr error

	mu      sync.RWMutex
	snap    Snapshot
	updates chan struct{}
}

// NewReconciler subscribes to the message events on events and starts the
// reconciliation loop. Call Close to stop it.
func NewReconciler(backend Backend, events Events, opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = defaultMaxPending
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reconciler{
		backend: backend,
		events:  events,
		opts:    opts,
		logger:  logger.With("component", "conversation"),
		inbox:   make(chan func(), inboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		updates: make(chan struct{}, 1),
	}

	for _, name := range chat.MessageEvents {
		r.subs = append(r.subs, events.Subscribe(name, func(payload json.RawMessage) {
			r.receive(name, payload)
		}))
	}

	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.quit:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the reconciler is
// closed.
func (r *Reconciler) post(fn func()) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.inbox <- fn:
		return true
	case <-r.quit:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (r *Reconciler) call(fn func()) error {
	ran := make(chan struct{})
	if !r.post(func() {
		fn()
		close(ran)
	}) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// receive decodes a channel payload and hands it to the loop.
func (r *Reconciler) receive(name string, payload json.RawMessage) {
	ev, err := chat.DecodeEvent(name, payload)
	if err != nil {
		r.opts.Metrics.Dropped("malformed")
		r.logger.Debug("dropping undecodable event", "event", name, "error", err)
		return
	}
	r.post(func() { r.apply(ev) })
}

// apply routes one event according to the current state. Runs on the loop.
func (r *Reconciler) apply(ev chat.Event) {
	switch r.state {
	case StateUninitialized:
		r.opts.Metrics.Dropped("no_conversation")
	case StateLoading:
		if len(r.pending) >= r.opts.MaxPending {
			r.pending = r.pending[1:]
			r.opts.Metrics.Dropped("pending_overflow")
			r.logger.Warn("pending event buffer full, dropping oldest", "max", r.opts.MaxPending)
		}
		r.pending = append(r.pending, ev)
	case StateReady:
		if r.view.Apply(ev) {
			r.publish()
		} else {
			r.logger.Debug("event did not change view", "kind", ev.Kind, "message_id", ev.MessageID)
		}
	}
}

// Open discards the current view, fetches the history of pair and seeds a
// new view from it. Events arriving during the fetch are replayed after
// seeding. A fetch failure still leaves the view Ready (empty) and is
// returned. If another Open starts before this one's snapshot arrives, the
// snapshot is dropped and ErrSuperseded returned.
func (r *Reconciler) Open(ctx context.Context, pair chat.Pair) error {
	if pair.IsZero() {
		return fmt.Errorf("opening conversation: %w", ErrNoConversation)
	}

	var gen uint64
	if err := r.call(func() { gen = r.begin(pair) }); err != nil {
		return err
	}

	r.logger.Debug("fetching history", "pair", pair.String(), "generation", gen)
	msgs, fetchErr := r.backend.History(ctx, pair.Local.Username, pair.Counterpart.Username, 1, r.opts.PageSize)

	var result error
	if err := r.call(func() { result = r.seed(gen, msgs, fetchErr) }); err != nil {
		return err
	}
	return result
}

// begin starts a new generation for pair. Runs on the loop.
func (r *Reconciler) begin(pair chat.Pair) uint64 {
	r.gen++
	r.view = NewView(pair)
	r.state = StateLoading
	r.pending = nil
	r.lastErr = nil
	r.publish()
	r.logger.Info("conversation opened", "pair", pair.String(), "generation", r.gen)
	return r.gen
}

// seed applies a snapshot for generation gen. Runs on the loop.
func (r *Reconciler) seed(gen uint64, msgs []chat.Message, fetchErr error) error {
	if gen != r.gen {
		r.logger.Debug("discarding stale snapshot", "generation", gen, "current", r.gen)
		return ErrSuperseded
	}

	if fetchErr != nil {
		r.view.Reset()
		r.lastErr = fetchErr
		r.logger.Warn("history fetch failed", "pair", r.view.Pair().String(), "error", fetchErr)
	} else {
		r.view.Seed(msgs)
	}

	for _, ev := range r.pending {
		r.view.Apply(ev)
	}
	replayed := len(r.pending)
	r.pending = nil
	r.state = StateReady
	r.publish()

	r.logger.Debug("conversation ready",
		"messages", r.view.Len(),
		"replayed", replayed,
		"generation", gen)

	if fetchErr != nil {
		return fmt.Errorf("loading conversation: %w", fetchErr)
	}
	return nil
}

// Send submits body to the counterpart. The view is not changed; the
// message appears when the server echoes it as a new_message event.
func (r *Reconciler) Send(ctx context.Context, body string) error {
	pair := r.Pair()
	if pair.IsZero() {
		return ErrNoConversation
	}
	err := r.backend.Send(ctx, pair.Counterpart.Username, body)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Edit replaces the body of message id. On success the edit is applied to
// the view at once; the echoed event re-applies it without further change.
func (r *Reconciler) Edit(ctx context.Context, id int64, body string) error {
	if r.Pair().IsZero() {
		return ErrNoConversation
	}
	err := r.backend.Edit(ctx, id, body)
	if err != nil {
		return fmt.Errorf("editing message %d: %w", id, err)
	}
	return r.call(func() { r.apply(chat.Edited(id, body, time.Time{})) })
}

// Delete removes message id. On success it is removed from the view at once.
func (r *Reconciler) Delete(ctx context.Context, id int64) error {
	if r.Pair().IsZero() {
		return ErrNoConversation
	}
	err := r.backend.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting message %d: %w", id, err)
	}
	return r.call(func() { r.apply(chat.Deleted(id, time.Time{})) })
}

// publish copies the view into the shared snapshot and signals Updates.
// Runs on the loop.
func (r *Reconciler) publish() {
	snap := Snapshot{
		State:      r.state,
		Err:        r.lastErr,
		Generation: r.gen,
	}
	if r.view != nil {
		snap.Pair = r.view.Pair()
		snap.Messages = r.view.Messages()
	}

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current view and state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.snap
	snap.Messages = append([]chat.Message(nil), r.snap.Messages...)
	return snap
}

// State returns the lifecycle state of the current view.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.State
}

// Pair returns the currently open pair, zero before Open.
func (r *Reconciler) Pair() chat.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Pair
}

// Updates is signalled after every change to the snapshot. Signals coalesce;
// read Snapshot after receiving.
func (r *Reconciler) Updates() <-chan struct{} {
	return r.updates
}

// Close unsubscribes from the channel and stops the loop. The shared
// connection stays up.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		for _, sub := range r.subs {
			r.events.Unsubscribe(sub)
		}
		close(r.quit)
		<-r.done
		r.logger.Debug("reconciler closed")
	})
}
