package handlers

import (
	"errors"
	"net/http"
	"strings"

	"markeredit/services/sessions"
)

type sessionService interface {
	Enabled() bool
	Login(password string) (string, error)
	Validate(token string) bool
	Logout(token string)
}

var _ sessionService = (*sessions.Service)(nil)

// AuthHandler serves the optional single-user login.
type AuthHandler struct {
	Sessions sessionService
}

func NewAuthHandler(svc sessionService) *AuthHandler {
	return &AuthHandler{Sessions: svc}
}

// SessionToken extracts the bearer token from a request, if any.
func SessionToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Session-Token")
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.Sessions.Login(req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, sessions.ErrAuthDisabled) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, loginResponse{Token: token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := SessionToken(r); token != "" {
		h.Sessions.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

type authCheckResponse struct {
	Enabled       bool `json:"enabled"`
	Authenticated bool `json:"authenticated"`
}

// Check reports whether auth is configured and whether the caller's token is
// valid, so the UI knows to show the login screen.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, authCheckResponse{
		Enabled:       h.Sessions.Enabled(),
		Authenticated: h.Sessions.Validate(SessionToken(r)),
	})
}

func (h *AuthHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
