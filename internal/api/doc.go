// Package api is the REST client for the chat backend.
//
// Every request carries the session credential as a bearer token. Error
// responses surface as *Error with the server's message; list endpoints
// accept either a bare JSON array or an object wrapping it in a named field.
package api
