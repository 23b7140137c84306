package handlers

import (
	"net/http"

	"markeredit/config"
	"markeredit/services/sessions"
)

// SettingsHandler exposes the persisted configuration. The password hash
// never leaves the server; changing the password goes through a dedicated
// field on the update payload.
type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(manager *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: manager}
}

func redact(s config.Settings) config.Settings {
	s.Auth.PasswordHash = ""
	return s
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, redact(settings))
}

type settingsUpdate struct {
	config.Settings
	// NewPassword sets a new login password; empty leaves it unchanged.
	NewPassword string `json:"newPassword,omitempty"`
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var update settingsUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	current, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The hash is redacted on the way out, so keep the stored one unless a
	// new password was supplied.
	update.Auth.PasswordHash = current.Auth.PasswordHash
	if update.NewPassword != "" {
		hash, err := sessions.HashPassword(update.NewPassword)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		update.Auth.PasswordHash = hash
	}

	if err := h.Manager.Save(update.Settings); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, redact(update.Settings))
}

func (h *SettingsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
