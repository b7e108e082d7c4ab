// Package contacts keeps the signed-in user's contact list and pending
// contact requests, refreshing both when the server pushes contacts_updated.
package contacts
