// ABOUTME: Time-windowed, size-bounded duplicate filter for channel event frames
// ABOUTME: Frames are keyed by a blake3 digest of event name and payload

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Key is the digest of one event frame.
type Key [32]byte

// KeyOf hashes an event name and its raw payload. The name is length-prefixed
// so that ("ab", "c") and ("a", "bc") never collide.
func KeyOf(event string, payload []byte) Key {
	h := blake3.New()
	var n [8]byte
	l := uint64(len(event))
	for i := range n {
		n[i] = byte(l >> (8 * i))
	}
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(event))
	_, _ = h.Write(payload)

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

type entry struct {
	seen    time.Time
	element *list.Element
}

// Window remembers frame keys for a fixed duration. A frame is admitted the
// first time its key is offered and rejected while the key is still inside
// the window. Oldest keys are evicted first once maxSize is reached.
type Window struct {
	mu      sync.Mutex
	seen    map[Key]*entry
	order   *list.List // oldest at front
	window  time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a window. A non-positive window disables filtering: every
// frame is admitted.
func New(window time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Window{
		seen:    make(map[Key]*entry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Admit reports whether the frame is new. Repeats inside the window return
// false and do not extend the window.
func (w *Window) Admit(event string, payload []byte) bool {
	if w == nil || w.window <= 0 {
		return true
	}
	k := KeyOf(event, payload)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.seen[k]; ok {
		return false
	}

	if len(w.seen) >= w.maxSize {
		w.evictOldestLocked()
	}
	w.seen[k] = &entry{seen: now, element: w.order.PushBack(k)}
	return true
}

// Len returns the number of keys currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Reset forgets every key.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[Key]*entry)
	w.order.Init()
}

// expireLocked drops keys older than the window. Keys are appended in time
// order so it stops at the first live one.
func (w *Window) expireLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		k, _ := front.Value.(Key)
		e := w.seen[k]
		if e != nil && now.Sub(e.seen) < w.window {
			return
		}
		w.order.Remove(front)
		delete(w.seen, k)
	}
}

func (w *Window) evictOldestLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	k, _ := front.Value.(Key)
	w.order.Remove(front)
	delete(w.seen, k)
}
