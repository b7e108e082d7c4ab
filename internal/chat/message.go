// ABOUTME: Message, Participant and Pair types for direct-message conversations
// ABOUTME: Pair membership matches sender/receiver in either direction

package chat

import (
	"fmt"
	"time"
)

// Participant identifies one side of a message.
type Participant struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Is reports whether p and o name the same user. Usernames are compared when
// either side carries one; ids are the fallback for anonymous payloads.
func (p Participant) Is(o Participant) bool {
	if p.Username != "" || o.Username != "" {
		return p.Username == o.Username
	}
	return p.ID != 0 && p.ID == o.ID
}

// IsZero reports whether the participant carries no identity at all.
func (p Participant) IsZero() bool {
	return p.ID == 0 && p.Username == ""
}

func (p Participant) String() string {
	if p.Username != "" {
		return p.Username
	}
	return fmt.Sprintf("#%d", p.ID)
}

// Message is a single direct message as delivered by the backend.
type Message struct {
	ID        int64       `json:"id"`
	Sender    Participant `json:"sender"`
	Receiver  Participant `json:"receiver"`
	Body      string      `json:"message"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Pair is the unordered {local user, counterpart} set that scopes one
// conversation.
type Pair struct {
	Local       Participant
	Counterpart Participant
}

// NewPair builds a pair from two usernames.
func NewPair(local, counterpart string) Pair {
	return Pair{
		Local:       Participant{Username: local},
		Counterpart: Participant{Username: counterpart},
	}
}

// IsZero reports whether the pair is unset.
func (p Pair) IsZero() bool {
	return p.Local.IsZero() && p.Counterpart.IsZero()
}

// Matches reports whether m was exchanged between the two participants of the
// pair, in either direction.
func (p Pair) Matches(m Message) bool {
	if p.IsZero() {
		return false
	}
	return (m.Sender.Is(p.Local) && m.Receiver.Is(p.Counterpart)) ||
		(m.Sender.Is(p.Counterpart) && m.Receiver.Is(p.Local))
}

// Equal reports whether two pairs name the same conversation regardless of
// which side is local.
func (p Pair) Equal(o Pair) bool {
	return (p.Local.Is(o.Local) && p.Counterpart.Is(o.Counterpart)) ||
		(p.Local.Is(o.Counterpart) && p.Counterpart.Is(o.Local))
}

func (p Pair) String() string {
	return p.Local.String() + "<->" + p.Counterpart.String()
}
