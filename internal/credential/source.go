// ABOUTME: Session-scoped credential holder with change notification
// ABOUTME: Reports expired JWTs as absent and tells listeners when one lapses

package credential

import (
	"log/slog"
	"sync"
	"time"
)

// Source holds the current session credential. The zero value is not usable;
// create one with NewSource.
type Source struct {
	mu        sync.RWMutex
	token     string
	listeners []func(token string)
	expiry    *time.Timer // fires at the JWT exp of token
	now       func() time.Time
	logger    *slog.Logger
}

// NewSource creates a source seeded with token, which may be empty.
func NewSource(token string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		token:  token,
		now:    time.Now,
		logger: logger.With("component", "credential"),
	}
	s.armExpiry(token)
	return s
}

// Token returns the current credential, or "" when none is set or the
// credential is a JWT that has expired. Opaque non-JWT tokens are returned
// as-is.
func (s *Source) Token() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return ""
	}
	claims, err := Inspect(token)
	if err != nil {
		return token
	}
	if claims.Expired(s.now()) {
		s.logger.Warn("session token expired", "expired_at", claims.ExpiresAt)
		return ""
	}
	return token
}

// Claims returns the decoded claims of the current token, if it is a JWT.
func (s *Source) Claims() (*Claims, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	return Inspect(token)
}

// Set replaces the credential and notifies listeners when it changed.
func (s *Source) Set(token string) {
	s.mu.Lock()
	if s.token == token {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.armExpiry(token)
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(token)
	}
}

// armExpiry schedules the lapse notification for a JWT with an exp claim.
// Callers hold mu or own s exclusively.
func (s *Source) armExpiry(token string) {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return
	}
	wait := max(claims.ExpiresAt.Sub(s.now()), 0)
	s.expiry = time.AfterFunc(wait, func() { s.lapse(token, claims.ExpiresAt) })
}

// lapse tells listeners the credential is gone once token expires. The token
// itself is kept so Claims can still report when it expired.
func (s *Source) lapse(token string, at time.Time) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Warn("session token expired", "expired_at", at)
	for _, fn := range listeners {
		fn("")
	}
}

// Clear drops the credential (logout).
func (s *Source) Clear() {
	s.Set("")
}

// OnChange registers fn to run after every credential change. fn runs on the
// goroutine calling Set, or on a timer goroutine with "" when a JWT expires.
func (s *Source) OnChange(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
