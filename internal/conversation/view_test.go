// ABOUTME: Tests for the pure conversation view operations
// ABOUTME: Idempotence, pair filtering, delivery order and unknown-id tolerance

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/chat"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func message(id int64, from, to, body string) chat.Message {
	return chat.Message{
		ID:        id,
		Sender:    chat.Participant{Username: from},
		Receiver:  chat.Participant{Username: to},
		Body:      body,
		Status:    "sent",
		CreatedAt: t0.Add(time.Duration(id) * time.Minute),
		UpdatedAt: t0.Add(time.Duration(id) * time.Minute),
	}
}

func ids(msgs []chat.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestView_CreateIsIdempotent(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	m := message(1, "alice", "bob", "hi")

	assert.True(t, v.ApplyCreate(m))
	once := v.Messages()

	assert.False(t, v.ApplyCreate(m))
	assert.Equal(t, once, v.Messages())
	assert.Equal(t, 1, v.Len())
}

func TestView_CreateKeepsFirstCopy(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(1, "alice", "bob", "first"))
	v.ApplyCreate(message(1, "alice", "bob", "second"))

	got, ok := v.Get(1)
	require.True(t, ok)
	assert.Equal(t, "first", got.Body)
}

func TestView_EditIsIdempotent(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(1, "alice", "bob", "hi"))
	at := t0.Add(time.Hour)

	assert.True(t, v.ApplyEdit(1, "hello", at))
	once := v.Messages()

	assert.False(t, v.ApplyEdit(1, "hello", at))
	assert.Equal(t, once, v.Messages())
}

func TestView_EditZeroTimeKeepsUpdatedAt(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	orig := message(1, "alice", "bob", "hi")
	v.ApplyCreate(orig)

	assert.True(t, v.ApplyEdit(1, "hello", time.Time{}))
	got, _ := v.Get(1)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, orig.UpdatedAt, got.UpdatedAt)
}

func TestView_EditKeepsIdentity(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	orig := message(1, "alice", "bob", "hi")
	v.ApplyCreate(orig)
	v.ApplyEdit(1, "changed", t0.Add(time.Hour))

	got, _ := v.Get(1)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Sender, got.Sender)
	assert.Equal(t, orig.Receiver, got.Receiver)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), got.UpdatedAt)
}

func TestView_FiltersOtherPairs(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(1, "alice", "bob", "hi"))
	before := v.Messages()

	assert.False(t, v.ApplyCreate(message(2, "alice", "carol", "hey carol")))
	assert.False(t, v.ApplyCreate(message(3, "carol", "bob", "hey bob")))
	assert.Equal(t, before, v.Messages())

	// Either direction belongs to the pair.
	assert.True(t, v.ApplyCreate(message(4, "bob", "alice", "reply")))
}

func TestView_UnknownIDsAreIgnored(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(1, "alice", "bob", "hi"))
	before := v.Messages()

	assert.False(t, v.ApplyEdit(99, "nope", t0))
	assert.False(t, v.ApplyDelete(99))
	assert.Equal(t, before, v.Messages())
}

func TestView_DeliveryOrder(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	for _, id := range []int64{3, 1, 2} {
		v.ApplyCreate(message(id, "alice", "bob", "x"))
	}
	assert.Equal(t, []int64{3, 1, 2}, ids(v.Messages()))
}

func TestView_CreateEditDeleteScenario(t *testing.T) {
	v := NewView(chat.NewPair("A", "B"))

	v.ApplyCreate(message(1, "A", "B", "hi"))
	require.Equal(t, []int64{1}, ids(v.Messages()))

	t2 := t0.Add(2 * time.Minute)
	v.ApplyEdit(1, "hello", t2)
	got, ok := v.Get(1)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, t2, got.UpdatedAt)

	assert.True(t, v.ApplyDelete(1))
	assert.Empty(t, v.Messages())
	assert.False(t, v.ApplyDelete(1))
}

func TestView_SeedFiltersAndDedupes(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(9, "alice", "bob", "old"))

	v.Seed([]chat.Message{
		message(1, "alice", "bob", "a"),
		message(2, "bob", "alice", "b"),
		message(1, "alice", "bob", "dup"),
		message(3, "alice", "carol", "elsewhere"),
	})

	assert.Equal(t, []int64{1, 2}, ids(v.Messages()))
	got, _ := v.Get(1)
	assert.Equal(t, "a", got.Body)
}

func TestView_ApplyEvent(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))

	assert.True(t, v.Apply(chat.Created(message(1, "alice", "bob", "hi"))))
	assert.True(t, v.Apply(chat.Edited(1, "edited", time.Time{})))
	got, _ := v.Get(1)
	assert.Equal(t, "edited", got.Body)

	assert.True(t, v.Apply(chat.Deleted(1, t0)))
	assert.Zero(t, v.Len())
	assert.False(t, v.Apply(chat.Event{}))
}

func TestView_MessagesIsACopy(t *testing.T) {
	v := NewView(chat.NewPair("alice", "bob"))
	v.ApplyCreate(message(1, "alice", "bob", "hi"))

	msgs := v.Messages()
	msgs[0].Body = "mutated"

	got, _ := v.Get(1)
	assert.Equal(t, "hi", got.Body)
}
