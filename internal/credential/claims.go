// ABOUTME: Unverified JWT claim inspection for session credentials
// ABOUTME: Extracts subject, username and expiry so expired tokens count as invalidated

package credential

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrExpired   = errors.New("token expired")
)

// Claims holds the fields of a session token the client cares about.
type Claims struct {
	Subject   string
	Username  string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token expired before now.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect decodes the claims of a JWT without verifying its signature.
func Inspect(token string) (*Claims, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	c := &Claims{
		Subject:  claimString(mc["sub"]),
		Username: claimString(mc["username"]),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// claimString accepts string or numeric claims; sub is often a numeric user id.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
}
