package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"markeredit/handlers"

	"github.com/gorilla/mux"
)

type fakeValidator struct {
	valid map[string]bool
}

func (f fakeValidator) Validate(token string) bool { return f.valid[token] }

func newTestRouter(sessions sessionValidator) *mux.Router {
	r := mux.NewRouter()
	Register(r,
		&handlers.MarkersHandler{},
		&handlers.BulkHandler{},
		&handlers.PurgeHandler{},
		&handlers.LibraryHandler{},
		&handlers.AuthHandler{},
		&handlers.SettingsHandler{},
		sessions,
	)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(fakeValidator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(fakeValidator{valid: map[string]bool{"good": true}})

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// A valid token reaches the handler, which then rejects the missing
	// id parameter.
	req = httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with valid token, got %d", rec.Code)
	}
}

func TestOptionsPreflightSkipsAuth(t *testing.T) {
	router := newTestRouter(fakeValidator{})

	req := httptest.NewRequest(http.MethodOptions, "/api/shift", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS headers missing on preflight")
	}
}
