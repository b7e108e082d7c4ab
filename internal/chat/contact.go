// ABOUTME: Contact and pending contact request types from the contacts API
// ABOUTME: Pending requests are flattened to sender info keyed by request id

package chat

// Contact is an accepted contact of the signed-in user.
type Contact struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// PendingRequest is an incoming contact request. ID is the request id used
// to accept or reject it, not the sender's user id.
type PendingRequest struct {
	ID     int64   `json:"id"`
	Sender Contact `json:"sender"`
}
