package handlers

import (
	"context"
	"errors"
	"net/http"

	"markeredit/models"
	"markeredit/services/markers"
	"markeredit/services/timeexp"
)

type markerService interface {
	Add(ctx context.Context, parentID, start, end int64, markerType models.MarkerType, final bool) (models.Marker, error)
	Edit(ctx context.Context, id, start, end int64, markerType models.MarkerType, final, userCreated bool) (models.Marker, error)
	Delete(ctx context.Context, id int64) (models.Marker, error)
	Query(ctx context.Context, rootID int64) ([]models.EpisodeData, error)
	Chapters(ctx context.Context, rootID int64) (map[int64][]models.ChapterData, error)
}

var _ markerService = (*markers.Service)(nil)

// MarkersHandler serves single-marker mutations and library queries.
type MarkersHandler struct {
	Service markerService
}

func NewMarkersHandler(service markerService) *MarkersHandler {
	return &MarkersHandler{Service: service}
}

// markerStatus maps service errors to HTTP status codes. Validation failures
// and unknown ids are client errors.
func markerStatus(err error) int {
	switch {
	case errors.Is(err, markers.ErrNotFound),
		errors.Is(err, markers.ErrWrongMetadataType),
		errors.Is(err, markers.ErrInvalidBounds),
		errors.Is(err, markers.ErrInvalidType),
		errors.Is(err, markers.ErrInvalidResolveType):
		return http.StatusBadRequest
	}
	var parseErr *timeexp.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type addRequest struct {
	MetadataID int64             `json:"metadataId"`
	Start      int64             `json:"start"`
	End        int64             `json:"end"`
	Type       models.MarkerType `json:"markerType"`
	Final      bool              `json:"final"`
}

func (h *MarkersHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}

	marker, err := h.Service.Add(r.Context(), req.MetadataID, req.Start, req.End, req.Type, req.Final)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, marker)
}

type editRequest struct {
	ID          int64             `json:"id"`
	Start       int64             `json:"start"`
	End         int64             `json:"end"`
	Type        models.MarkerType `json:"markerType"`
	Final       bool              `json:"final"`
	UserCreated bool              `json:"userCreated"`
}

func (h *MarkersHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}

	marker, err := h.Service.Edit(r.Context(), req.ID, req.Start, req.End, req.Type, req.Final, req.UserCreated)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, marker)
}

type deleteRequest struct {
	ID int64 `json:"id"`
}

func (h *MarkersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	marker, err := h.Service.Delete(r.Context(), req.ID)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, marker)
}

// Query returns the episodes under any metadata id with their markers.
func (h *MarkersHandler) Query(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	episodes, err := h.Service.Query(r.Context(), id)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, episodes)
}

// Chapters returns embedded chapter data for the episodes under a root, for
// chapter-based timestamp entry in the edit UI.
func (h *MarkersHandler) Chapters(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	chapters, err := h.Service.Chapters(r.Context(), id)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, chapters)
}

func (h *MarkersHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
