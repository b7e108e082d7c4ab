// ABOUTME: Chat endpoints: history snapshot, send, edit and delete
// ABOUTME: History accepts a bare array or {"messages": [...]}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/coven-chat/internal/chat"
)

// History fetches one page of the conversation between userA and userB,
// oldest first.
func (c *Client) History(ctx context.Context, userA, userB string, page, limit int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("userA", userA)
	q.Set("userB", userB)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, "history", http.MethodGet, "/chat/history", q, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	msgs, err := decodeList[chat.Message](body, "messages")
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	return msgs, nil
}

type sendRequest struct {
	ReceiverUsername string `json:"receiverUsername"`
	Message          string `json:"message"`
}

// Send posts a message to receiver. The server broadcasts it back on the
// event channel as new_message.
func (c *Client) Send(ctx context.Context, receiver, body string) error {
	_, err := c.do(ctx, "send", http.MethodPost, "/chat/send", nil,
		sendRequest{ReceiverUsername: receiver, Message: body})
	return err
}

type editRequest struct {
	Message string `json:"message"`
}

// Edit replaces the body of message id.
func (c *Client) Edit(ctx context.Context, id int64, body string) error {
	_, err := c.do(ctx, "edit", http.MethodPatch, "/chat/edit/"+strconv.FormatInt(id, 10), nil,
		editRequest{Message: body})
	return err
}

// Delete removes message id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, "/chat/delete/"+strconv.FormatInt(id, 10), nil, nil)
	return err
}
