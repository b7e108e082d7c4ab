// ABOUTME: Contact endpoints: list, pending requests, accept/reject, request and user search
// ABOUTME: List responses may be bare arrays or wrapped in contacts/requests/users

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/coven-chat/internal/chat"
)

// Contacts lists the accepted contacts of the signed-in user.
func (c *Client) Contacts(ctx context.Context) ([]chat.Contact, error) {
	body, err := c.do(ctx, "contacts", http.MethodGet, "/contact/list", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	contacts, err := decodeList[chat.Contact](body, "contacts")
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return contacts, nil
}

// PendingRequests lists incoming contact requests.
func (c *Client) PendingRequests(ctx context.Context) ([]chat.PendingRequest, error) {
	body, err := c.do(ctx, "contact_requests", http.MethodGet, "/contact/requests", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing contact requests: %w", err)
	}
	reqs, err := decodeList[chat.PendingRequest](body, "requests")
	if err != nil {
		return nil, fmt.Errorf("listing contact requests: %w", err)
	}
	return reqs, nil
}

// AcceptRequest accepts the pending request with the given request id.
func (c *Client) AcceptRequest(ctx context.Context, requestID int64) error {
	_, err := c.do(ctx, "contact_accept", http.MethodPatch,
		"/contact/accept/"+strconv.FormatInt(requestID, 10), nil, nil)
	return err
}

// RejectRequest rejects the pending request with the given request id.
func (c *Client) RejectRequest(ctx context.Context, requestID int64) error {
	_, err := c.do(ctx, "contact_reject", http.MethodDelete,
		"/contact/reject/"+strconv.FormatInt(requestID, 10), nil, nil)
	return err
}

type contactRequest struct {
	ReceiverID int64 `json:"receiverId"`
}

// RequestContact sends a contact request to the user with id userID.
func (c *Client) RequestContact(ctx context.Context, userID int64) error {
	_, err := c.do(ctx, "contact_request", http.MethodPost, "/contact/request", nil,
		contactRequest{ReceiverID: userID})
	return err
}

// SearchUsers finds users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]chat.Contact, error) {
	q := url.Values{}
	q.Set("query", query)

	body, err := c.do(ctx, "user_search", http.MethodGet, "/user/search", q, nil)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	users, err := decodeList[chat.Contact](body, "users")
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return users, nil
}
