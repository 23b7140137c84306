// Package sessions implements the optional single-user password gate: bcrypt
// password verification and opaque in-memory session tokens with a sliding
// expiry.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidPassword is returned for a failed login attempt.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrAuthDisabled is returned when login is attempted with auth off.
	ErrAuthDisabled = errors.New("authentication is disabled")
)

// DefaultTTL is the session lifetime when the config does not set one.
const DefaultTTL = 7 * 24 * time.Hour

// Service validates passwords and tracks live session tokens. Tokens are
// process-lifetime only; restarting the server logs everyone out.
type Service struct {
	mu       sync.Mutex
	hash     []byte
	ttl      time.Duration
	enabled  bool
	sessions map[string]time.Time
	now      func() time.Time
}

// NewService builds the session service from the stored bcrypt hash. An empty
// hash disables authentication entirely.
func NewService(passwordHash string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		hash:     []byte(passwordHash),
		ttl:      ttl,
		enabled:  passwordHash != "",
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// GeneratePassword creates a random first-run password and its bcrypt hash.
// The plaintext is printed once at startup and never stored.
func GeneratePassword() (plain, hash string, err error) {
	plain, err = password.Generate(16, 4, 0, false, false)
	if err != nil {
		return "", "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return plain, string(hashed), nil
}

// HashPassword hashes a user-chosen password for storage in the config.
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Enabled reports whether a password is configured.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Login checks the password and returns a fresh session token.
func (s *Service) Login(plain string) (string, error) {
	if !s.enabled {
		return "", ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(plain)); err != nil {
		return "", ErrInvalidPassword
	}

	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[token] = s.now().Add(s.ttl)
	return token, nil
}

// Validate reports whether a token belongs to a live session. A valid touch
// slides the expiry forward. With auth disabled every token passes.
func (s *Service) Validate(token string) bool {
	if !s.enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	s.sessions[token] = s.now().Add(s.ttl)
	return true
}

// Logout invalidates a session token.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// sweepLocked drops expired sessions so the map cannot grow unbounded.
func (s *Service) sweepLocked() {
	now := s.now()
	for token, expiry := range s.sessions {
		if now.After(expiry) {
			delete(s.sessions, token)
		}
	}
}
