// Package channel owns the persistent, authenticated event connection to the
// chat backend.
//
// # Overview
//
// A [Manager] is a session-scoped object: construct one per signed-in session
// and hand it to every consumer that needs live events. It maintains at most
// one live connection, opened lazily by [Manager.Acquire] and torn down by
// [Manager.Release] at session end.
//
// # Wire Protocol
//
// The backend speaks socket.io v4 over a WebSocket transport:
//
//	ws(s)://host/socket.io/?EIO=4&transport=websocket
//
// After the engine.io open packet the client joins the configured namespace
// (default /chat) with its bearer credential in the auth payload:
//
//	40/chat,{"token":"<credential>"}
//
// Server events arrive as 42/chat,["name",payload] and are dispatched by name.
// Engine.io pings are answered with pongs; a silent connection is dropped once
// pingInterval+pingTimeout elapses.
//
// # Subscriptions
//
// Subscriptions belong to the Manager, not to a connection, so they survive
// reconnects. Handlers run on the connection's read goroutine in registration
// order and must not block.
//
// # Health Events
//
// Connection state changes are published as local events to subscribers of
// their names only:
//
//   - connect: {"sid": "..."}
//   - disconnect: {"reason": "..."}
//   - connect_error: {"message": "..."}
//
// Events pushed while disconnected are not replayed after a reconnect.
package channel
