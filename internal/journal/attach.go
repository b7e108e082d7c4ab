// ABOUTME: Wires the journal to the channel manager as an ordinary subscriber
// ABOUTME: Extracts message id and author from payloads before recording

package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/chat"
)

const recordTimeout = 5 * time.Second

// Recorder is the write side of a journal.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Events is the subscription side of the channel manager.
type Events interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
	Unsubscribe(sub channel.Subscription)
}

// Recorded lists the events the journal subscribes to by default.
var Recorded = []string{
	chat.EventNewMessage,
	chat.EventMessageEdited,
	chat.EventMessageDeleted,
	chat.EventContactsUpdated,
	chat.EventContactAccepted,
	chat.EventConnect,
	chat.EventDisconnect,
	chat.EventConnectError,
}

// Attach records every event in names as it is delivered. The returned
// function unsubscribes. Record failures are logged and otherwise ignored.
func Attach(rec Recorder, events Events, names []string, logger *slog.Logger) (detach func()) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	subs := make([]channel.Subscription, 0, len(names))
	for _, name := range names {
		subs = append(subs, events.Subscribe(name, func(payload json.RawMessage) {
			e := entryFor(name, payload)
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := rec.Record(ctx, &e); err != nil {
				logger.Warn("failed to record channel event", "event", name, "error", err)
			}
		}))
	}

	return func() {
		for _, sub := range subs {
			events.Unsubscribe(sub)
		}
	}
}

// entryFor builds an entry, pulling the message id and author out of the
// payload when the event carries them.
func entryFor(name string, payload json.RawMessage) Entry {
	e := Entry{Event: name, Payload: payload}

	if len(payload) == 0 {
		return e
	}
	var fields struct {
		ID        int64            `json:"id"`
		MessageID int64            `json:"messageId"`
		Sender    chat.Participant `json:"sender"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return e
	}
	switch name {
	case chat.EventNewMessage:
		e.MessageID = fields.ID
		e.Author = fields.Sender.Username
	case chat.EventMessageEdited, chat.EventMessageDeleted:
		e.MessageID = fields.MessageID
	}
	return e
}
