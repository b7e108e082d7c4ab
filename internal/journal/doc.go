// Package journal records channel events received by this client in a local
// SQLite database, so a session's live traffic can be inspected afterwards.
//
// The journal is an audit log only. The conversation view is never rebuilt
// from it; history comes from the REST API.
package journal
