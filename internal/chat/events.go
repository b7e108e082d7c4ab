// ABOUTME: Live channel event names and the tagged Created/Edited/Deleted event union
// ABOUTME: Decodes raw JSON payloads pushed by the backend into typed events

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names pushed by the backend on the chat namespace.
const (
	EventNewMessage      = "new_message"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventContactsUpdated = "contacts_updated"
	EventContactAccepted = "contact_accepted"
)

// Channel health events raised locally by the channel manager.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// MessageEvents lists the event names that mutate a conversation view.
var MessageEvents = []string{EventNewMessage, EventMessageEdited, EventMessageDeleted}

// ContactEvents lists the event names that change the contact book.
var ContactEvents = []string{EventContactsUpdated, EventContactAccepted}

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed event payload")
)

// EventKind tags the variant held by an Event.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventEdited
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventEdited:
		return "edited"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a decoded message event. Message is set for EventCreated;
// MessageID, Body and At are set for EventEdited; MessageID and At for
// EventDeleted.
type Event struct {
	Kind      EventKind
	Message   Message
	MessageID int64
	Body      string
	At        time.Time
}

// Created wraps a new message.
func Created(m Message) Event {
	return Event{Kind: EventCreated, Message: m, MessageID: m.ID}
}

// Edited builds an edit event.
func Edited(id int64, body string, at time.Time) Event {
	return Event{Kind: EventEdited, MessageID: id, Body: body, At: at}
}

// Deleted builds a delete event.
func Deleted(id int64, at time.Time) Event {
	return Event{Kind: EventDeleted, MessageID: id, At: at}
}

// EditedPayload is the wire shape of message_edited.
type EditedPayload struct {
	MessageID  int64     `json:"messageId"`
	NewMessage string    `json:"newMessage"`
	EditedAt   time.Time `json:"editedAt"`
}

// DeletedPayload is the wire shape of message_deleted.
type DeletedPayload struct {
	MessageID int64     `json:"messageId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// DecodeEvent converts a named channel payload into an Event.
func DecodeEvent(name string, payload json.RawMessage) (Event, error) {
	if len(payload) == 0 {
		return Event{}, fmt.Errorf("%w: %s: empty", ErrMalformedPayload, name)
	}

	switch name {
	case EventNewMessage:
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if m.ID == 0 {
			return Event{}, fmt.Errorf("%w: %s: missing id", ErrMalformedPayload, name)
		}
		return Created(m), nil

	case EventMessageEdited:
		var p EditedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if p.MessageID == 0 {
			return Event{}, fmt.Errorf("%w: %s: missing messageId", ErrMalformedPayload, name)
		}
		return Edited(p.MessageID, p.NewMessage, p.EditedAt), nil

	case EventMessageDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if p.MessageID == 0 {
			return Event{}, fmt.Errorf("%w: %s: missing messageId", ErrMalformedPayload, name)
		}
		return Deleted(p.MessageID, p.DeletedAt), nil
	}

	return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}
