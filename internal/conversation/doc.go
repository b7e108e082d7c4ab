// Package conversation reconciles one direct-message conversation.
//
// # Overview
//
// A conversation is scoped to an unordered pair of participants. Its state is
// built from two sources that race each other: a paginated history snapshot
// fetched over REST, and live create/edit/delete events pushed on the event
// channel. The package merges both into a single de-duplicated View.
//
// # View
//
// View is a plain value with no locking. It keeps messages in delivery order,
// never re-sorting by id or timestamp:
//
//	v := conversation.NewView(chat.NewPair("alice", "bob"))
//	v.ApplyCreate(msg)          // no-op if the id is already present
//	v.ApplyEdit(id, body, at)   // unknown ids are dropped
//	v.ApplyDelete(id)           // absent ids are not an error
//
// Applying the same create or edit twice leaves the view identical to
// applying it once.
//
// # Reconciler
//
// Reconciler owns one View and runs a single loop goroutine that serializes
// every mutation. Live events are decoded into chat.Event values and queued
// to the loop; REST completions are queued the same way.
//
//	r := conversation.NewReconciler(apiClient, manager, conversation.Options{})
//	defer r.Close()
//	err := r.Open(ctx, chat.NewPair("alice", "bob"))
//
// States move Uninitialized -> Loading -> Ready. Opening another pair
// discards the current view and starts again from Loading. While Loading,
// live events are buffered and replayed in arrival order right after the
// snapshot is seeded. A failed snapshot still ends in Ready, with no history
// and Snapshot().Err set.
//
// Each Open takes a new generation number. A snapshot that completes after
// a newer Open is discarded and its Open returns ErrSuperseded.
//
// Send never touches the view; the message appears when the server echoes
// it back as a new_message event. Edit and Delete apply locally once the
// request succeeds, and the echoed event later re-applies the same change.
//
// # Event channel
//
// The reconciler subscribes to the message events on the shared channel
// manager and unsubscribes on Close. It never acquires or releases the
// connection itself.
package conversation
