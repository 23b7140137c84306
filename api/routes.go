package api

import (
	"encoding/json"
	"net/http"

	"markeredit/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware rejects requests without a live session token. With auth
// disabled every request passes through.
func authMiddleware(sessions sessionValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Validate(handlers.SessionToken(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"Error": "authentication required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type sessionValidator interface {
	Validate(token string) bool
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	markersHandler *handlers.MarkersHandler,
	bulkHandler *handlers.BulkHandler,
	purgeHandler *handlers.PurgeHandler,
	libraryHandler *handlers.LibraryHandler,
	authHandler *handlers.AuthHandler,
	settingsHandler *handlers.SettingsHandler,
	sessions sessionValidator,
) {
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Auth routes (no authentication required)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/auth/check", authHandler.Check).Methods(http.MethodGet)
	api.HandleFunc("/auth/check", authHandler.Options).Methods(http.MethodOptions)

	// Protected routes - require authentication
	protected := api.PathPrefix("").Subrouter()
	protected.Use(authMiddleware(sessions))

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/logout", authHandler.Options).Methods(http.MethodOptions)

	// Single-marker operations
	protected.HandleFunc("/add", markersHandler.Add).Methods(http.MethodPost)
	protected.HandleFunc("/add", markersHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/edit", markersHandler.Edit).Methods(http.MethodPost)
	protected.HandleFunc("/edit", markersHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/delete", markersHandler.Delete).Methods(http.MethodPost)
	protected.HandleFunc("/delete", markersHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/query", markersHandler.Query).Methods(http.MethodGet)
	protected.HandleFunc("/query", markersHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/get_chapters", markersHandler.Chapters).Methods(http.MethodGet)
	protected.HandleFunc("/get_chapters", markersHandler.Options).Methods(http.MethodOptions)

	// Bulk operations
	protected.HandleFunc("/check_shift", bulkHandler.CheckShift).Methods(http.MethodPost)
	protected.HandleFunc("/check_shift", bulkHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/shift", bulkHandler.Shift).Methods(http.MethodPost)
	protected.HandleFunc("/shift", bulkHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/bulk_add", bulkHandler.BulkAdd).Methods(http.MethodPost)
	protected.HandleFunc("/bulk_add", bulkHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/add_custom", bulkHandler.AddCustom).Methods(http.MethodPost)
	protected.HandleFunc("/add_custom", bulkHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/bulk_delete", bulkHandler.BulkDelete).Methods(http.MethodPost)
	protected.HandleFunc("/bulk_delete", bulkHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/nuke_section", bulkHandler.NukeSection).Methods(http.MethodPost)
	protected.HandleFunc("/nuke_section", bulkHandler.Options).Methods(http.MethodOptions)

	// Purge detection
	protected.HandleFunc("/purge_check", purgeHandler.PurgeCheck).Methods(http.MethodPost)
	protected.HandleFunc("/purge_check", purgeHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/all_purges", purgeHandler.AllPurges).Methods(http.MethodGet)
	protected.HandleFunc("/all_purges", purgeHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/restore_purge", purgeHandler.RestorePurge).Methods(http.MethodPost)
	protected.HandleFunc("/restore_purge", purgeHandler.Options).Methods(http.MethodOptions)
	protected.HandleFunc("/ignore_purge", purgeHandler.IgnorePurge).Methods(http.MethodPost)
	protected.HandleFunc("/ignore_purge", purgeHandler.Options).Methods(http.MethodOptions)

	// Library navigation
	protected.HandleFunc("/sections", libraryHandler.Sections).Methods(http.MethodGet)
	protected.HandleFunc("/sections", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/shows", libraryHandler.Shows).Methods(http.MethodGet)
	protected.HandleFunc("/shows", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/seasons", libraryHandler.Seasons).Methods(http.MethodGet)
	protected.HandleFunc("/seasons", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/episodes", libraryHandler.Episodes).Methods(http.MethodGet)
	protected.HandleFunc("/episodes", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/section_items", libraryHandler.SectionItems).Methods(http.MethodGet)
	protected.HandleFunc("/section_items", handleOptions).Methods(http.MethodOptions)

	// Configuration
	protected.HandleFunc("/config", settingsHandler.GetSettings).Methods(http.MethodGet)
	protected.HandleFunc("/config", settingsHandler.PutSettings).Methods(http.MethodPut)
	protected.HandleFunc("/config", settingsHandler.Options).Methods(http.MethodOptions)
}
