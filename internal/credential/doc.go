// Package credential resolves and tracks the bearer credential used by the
// REST client and the event channel.
//
// Tokens come from, in order: the CHATSYNC_TOKEN environment variable, the
// auth.token config value, and the token file
// ($XDG_CONFIG_HOME/coven-chat/token). JWT claims are decoded without
// verification; the backend verifies signatures. A token whose exp claim has
// passed is treated as invalidated and [Source.Token] reports it as absent.
package credential
