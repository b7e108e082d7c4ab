// ABOUTME: Tests for pair membership and live event decoding
// ABOUTME: Covers both message directions, id fallback and malformed payloads

package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id int64, from, to string) Message {
	return Message{
		ID:       id,
		Sender:   Participant{Username: from},
		Receiver: Participant{Username: to},
		Body:     "body",
	}
}

func TestPair_MatchesBothDirections(t *testing.T) {
	p := NewPair("alice", "bob")

	assert.True(t, p.Matches(msg(1, "alice", "bob")))
	assert.True(t, p.Matches(msg(2, "bob", "alice")))
	assert.False(t, p.Matches(msg(3, "alice", "carol")))
	assert.False(t, p.Matches(msg(4, "carol", "bob")))
	assert.False(t, p.Matches(msg(5, "alice", "alice")))
}

func TestPair_ZeroMatchesNothing(t *testing.T) {
	var p Pair
	assert.True(t, p.IsZero())
	assert.False(t, p.Matches(msg(1, "", "")))
}

func TestPair_IDFallback(t *testing.T) {
	p := Pair{Local: Participant{ID: 1}, Counterpart: Participant{ID: 2}}
	m := Message{ID: 9, Sender: Participant{ID: 2}, Receiver: Participant{ID: 1}}
	assert.True(t, p.Matches(m))

	// Once a username is present on either side, usernames decide.
	m.Sender.Username = "bob"
	assert.False(t, p.Matches(m))
}

func TestPair_Equal(t *testing.T) {
	assert.True(t, NewPair("a", "b").Equal(NewPair("b", "a")))
	assert.False(t, NewPair("a", "b").Equal(NewPair("a", "c")))
}

func TestDecodeEvent_NewMessage(t *testing.T) {
	payload := json.RawMessage(`{
		"id": 7,
		"sender": {"id": 1, "username": "alice"},
		"receiver": {"id": 2, "username": "bob"},
		"message": "hi",
		"status": "sent",
		"createdAt": "2025-03-01T10:00:00.000Z",
		"updatedAt": "2025-03-01T10:00:00.000Z"
	}`)

	ev, err := DecodeEvent(EventNewMessage, payload)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, ev.Kind)
	assert.Equal(t, int64(7), ev.MessageID)
	assert.Equal(t, "hi", ev.Message.Body)
	assert.Equal(t, "alice", ev.Message.Sender.Username)
	assert.Equal(t, 2025, ev.Message.CreatedAt.Year())
}

func TestDecodeEvent_Edited(t *testing.T) {
	ev, err := DecodeEvent(EventMessageEdited,
		json.RawMessage(`{"messageId": 3, "newMessage": "hello", "editedAt": "2025-03-01T10:05:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, EventEdited, ev.Kind)
	assert.Equal(t, int64(3), ev.MessageID)
	assert.Equal(t, "hello", ev.Body)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC), ev.At)
}

func TestDecodeEvent_Deleted(t *testing.T) {
	ev, err := DecodeEvent(EventMessageDeleted,
		json.RawMessage(`{"messageId": 4, "deletedAt": "2025-03-01T10:06:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, EventDeleted, ev.Kind)
	assert.Equal(t, int64(4), ev.MessageID)
}

func TestDecodeEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		want    error
	}{
		{"empty payload", EventNewMessage, ``, ErrMalformedPayload},
		{"not json", EventNewMessage, `nope`, ErrMalformedPayload},
		{"message without id", EventNewMessage, `{"message": "x"}`, ErrMalformedPayload},
		{"edit without id", EventMessageEdited, `{"newMessage": "x"}`, ErrMalformedPayload},
		{"delete wrong type", EventMessageDeleted, `{"messageId": "abc"}`, ErrMalformedPayload},
		{"unknown", "typing", `{}`, ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(tt.event, json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
