// ABOUTME: Contact book holding contacts and pending requests from the REST API
// ABOUTME: Refreshes on contacts_updated; accept/reject drop the request locally on success

package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/chat"
)

const refreshTimeout = 15 * time.Second

// Backend is the REST collaborator for contacts.
type Backend interface {
	Contacts(ctx context.Context) ([]chat.Contact, error)
	PendingRequests(ctx context.Context) ([]chat.PendingRequest, error)
	AcceptRequest(ctx context.Context, requestID int64) error
	RejectRequest(ctx context.Context, requestID int64) error
	RequestContact(ctx context.Context, userID int64) error
	SearchUsers(ctx context.Context, query string) ([]chat.Contact, error)
}

// Events is the subscription side of the channel manager.
type Events interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
	Unsubscribe(sub channel.Subscription)
}

// State is a copy of the book's contents. The two lists load independently,
// so either may carry its own error.
type State struct {
	Contacts    []chat.Contact
	Pending     []chat.PendingRequest
	ContactsErr error
	PendingErr  error
	RefreshedAt time.Time
}

// Book is the contact list of the signed-in user. Safe for concurrent use.
type Book struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.RWMutex
	state State

	updates chan struct{}
}

// NewBook returns an empty book. Call Refresh to load it.
func NewBook(backend Backend, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{
		backend: backend,
		logger:  logger.With("component", "contacts"),
		updates: make(chan struct{}, 1),
	}
}

// Refresh reloads contacts and pending requests. A list that fails to load
// keeps its previous contents and records the error.
func (b *Book) Refresh(ctx context.Context) error {
	contacts, contactsErr := b.backend.Contacts(ctx)
	pending, pendingErr := b.backend.PendingRequests(ctx)

	b.mu.Lock()
	if contactsErr == nil {
		b.state.Contacts = contacts
	}
	if pendingErr == nil {
		b.state.Pending = pending
	}
	b.state.ContactsErr = contactsErr
	b.state.PendingErr = pendingErr
	b.state.RefreshedAt = time.Now()
	b.mu.Unlock()
	b.notify()

	b.logger.Debug("contacts refreshed",
		"contacts", len(contacts),
		"pending", len(pending),
		"contacts_error", contactsErr,
		"pending_error", pendingErr)

	return errors.Join(contactsErr, pendingErr)
}

// State returns a copy of the current contents.
func (b *Book) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.state
	s.Contacts = append([]chat.Contact(nil), b.state.Contacts...)
	s.Pending = append([]chat.PendingRequest(nil), b.state.Pending...)
	return s
}

// Find returns the contact with the given username.
func (b *Book) Find(username string) (chat.Contact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.state.Contacts {
		if strings.EqualFold(c.Username, username) {
			return c, true
		}
	}
	return chat.Contact{}, false
}

// Accept accepts pending request requestID.
func (b *Book) Accept(ctx context.Context, requestID int64) error {
	if err := b.backend.AcceptRequest(ctx, requestID); err != nil {
		return fmt.Errorf("accepting request %d: %w", requestID, err)
	}
	b.dropPending(requestID)
	return nil
}

// Reject rejects pending request requestID.
func (b *Book) Reject(ctx context.Context, requestID int64) error {
	if err := b.backend.RejectRequest(ctx, requestID); err != nil {
		return fmt.Errorf("rejecting request %d: %w", requestID, err)
	}
	b.dropPending(requestID)
	return nil
}

func (b *Book) dropPending(requestID int64) {
	b.mu.Lock()
	kept := b.state.Pending[:0:0]
	for _, r := range b.state.Pending {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	b.state.Pending = kept
	b.mu.Unlock()
	b.notify()
}

// Request sends a contact request to userID. Whether it is allowed is the
// server's decision.
func (b *Book) Request(ctx context.Context, userID int64) error {
	if err := b.backend.RequestContact(ctx, userID); err != nil {
		return fmt.Errorf("requesting contact %d: %w", userID, err)
	}
	return nil
}

// Search looks up users by query. An empty query returns nothing.
func (b *Book) Search(ctx context.Context, query string) ([]chat.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return b.backend.SearchUsers(ctx, query)
}

// Updates is signalled after every change. Signals coalesce.
func (b *Book) Updates() <-chan struct{} {
	return b.updates
}

func (b *Book) notify() {
	select {
	case b.updates <- struct{}{}:
	default:
	}
}

// Watch refreshes the book whenever contacts_updated or contact_accepted
// arrives, until ctx is done. Bursts of signals collapse into one refresh.
func (b *Book) Watch(ctx context.Context, events Events) {
	kick := make(chan struct{}, 1)
	signal := func(json.RawMessage) {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	subs := make([]channel.Subscription, 0, len(chat.ContactEvents))
	for _, name := range chat.ContactEvents {
		subs = append(subs, events.Subscribe(name, signal))
	}

	go func() {
		defer func() {
			for _, sub := range subs {
				events.Unsubscribe(sub)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
				if err := b.Refresh(rctx); err != nil {
					b.logger.Warn("contacts refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()
}
