// ABOUTME: Pure conversation view: delivery-ordered messages for one participant pair
// ABOUTME: Create/edit/delete are idempotent and never raise on unknown ids

package conversation

import (
	"time"

	"github.com/2389/coven-chat/internal/chat"
)

// View is the ordered message list of one conversation. It is not safe for
// concurrent use; the Reconciler serializes access.
type View struct {
	pair chat.Pair
	msgs []chat.Message
}

// NewView returns an empty view scoped to pair.
func NewView(pair chat.Pair) *View {
	return &View{pair: pair}
}

// Pair returns the participants this view is scoped to.
func (v *View) Pair() chat.Pair {
	return v.pair
}

func (v *View) Len() int {
	return len(v.msgs)
}

// Messages returns a copy of the messages in delivery order.
func (v *View) Messages() []chat.Message {
	out := make([]chat.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Get looks up a message by id.
func (v *View) Get(id int64) (chat.Message, bool) {
	if i := v.indexOf(id); i >= 0 {
		return v.msgs[i], true
	}
	return chat.Message{}, false
}

func (v *View) indexOf(id int64) int {
	for i := range v.msgs {
		if v.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyCreate appends m unless a message with the same id is present or m
// was not exchanged between the view's pair. Reports whether the view
// changed.
func (v *View) ApplyCreate(m chat.Message) bool {
	if v.indexOf(m.ID) >= 0 {
		return false
	}
	if !v.pair.Matches(m) {
		return false
	}
	v.msgs = append(v.msgs, m)
	return true
}

// ApplyEdit replaces the body of message id in place. A zero editedAt keeps
// the current UpdatedAt. Unknown ids are ignored.
func (v *View) ApplyEdit(id int64, body string, editedAt time.Time) bool {
	i := v.indexOf(id)
	if i < 0 {
		return false
	}

	m := &v.msgs[i]
	changed := m.Body != body
	m.Body = body
	if !editedAt.IsZero() && !editedAt.Equal(m.UpdatedAt) {
		m.UpdatedAt = editedAt
		changed = true
	}
	return changed
}

// ApplyDelete removes message id if present.
func (v *View) ApplyDelete(id int64) bool {
	i := v.indexOf(id)
	if i < 0 {
		return false
	}
	v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
	return true
}

// Apply dispatches a decoded event to the matching operation.
func (v *View) Apply(ev chat.Event) bool {
	switch ev.Kind {
	case chat.EventCreated:
		return v.ApplyCreate(ev.Message)
	case chat.EventEdited:
		return v.ApplyEdit(ev.MessageID, ev.Body, ev.At)
	case chat.EventDeleted:
		return v.ApplyDelete(ev.MessageID)
	}
	return false
}

// Seed replaces the content with a history snapshot. Messages outside the
// pair and repeated ids are skipped; the snapshot's order is kept.
func (v *View) Seed(msgs []chat.Message) {
	v.msgs = v.msgs[:0]
	for _, m := range msgs {
		v.ApplyCreate(m)
	}
}

// Reset drops all messages.
func (v *View) Reset() {
	v.msgs = nil
}
