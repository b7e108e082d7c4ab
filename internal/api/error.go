// ABOUTME: API error type and extraction of server messages from error bodies
// ABOUTME: Accepts {"message": "..."}, {"message": [...]} and {"error": "..."} shapes

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API, meaning the
// session credential was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{Status: resp.StatusCode, Message: errorMessage(body)}
}

// errorMessage pulls a human readable message out of an error body.
// Validation errors list one message per field.
func errorMessage(body []byte) string {
	var parsed struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		var s string
		if json.Unmarshal(parsed.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(parsed.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}
