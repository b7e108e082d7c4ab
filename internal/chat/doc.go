// Package chat defines the domain types shared by the channel, api and
// conversation packages.
//
// # Messages
//
// A [Message] is identified by a server-assigned integer id that never changes
// once assigned. Its sender and receiver are fixed at creation; only the body
// and the update timestamp change when the message is edited.
//
// # Conversation Pairs
//
// A [Pair] names one direct-message thread: the signed-in user and one
// counterpart. Pairs are unordered for membership purposes, so a message sent
// in either direction between the two participants belongs to the pair.
//
// # Live Events
//
// The backend pushes three message events on the event channel:
//
//   - new_message: a full Message
//   - message_edited: {"messageId", "newMessage", "editedAt"}
//   - message_deleted: {"messageId", "deletedAt"}
//
// [DecodeEvent] turns a named payload into the tagged [Event] union consumed
// by the conversation reconciler.
package chat
