package handlers

import (
	"context"
	"errors"
	"net/http"

	"markeredit/internal/backup"
	"markeredit/models"
	"markeredit/services/purge"
)

type purgeService interface {
	FindPurgedMarkers(ctx context.Context, sectionID int64) (*models.PurgedSection, error)
	GetPurgedShowMarkers(ctx context.Context, showID int64) (*models.PurgedShow, error)
	AllPurges(ctx context.Context) (map[int64]*models.PurgedSection, error)
	RestoreMarkers(ctx context.Context, markerIDs []int64) ([]models.Marker, error)
	IgnorePurgedMarkers(ctx context.Context, markerIDs []int64) (int, error)
}

var _ purgeService = (*purge.Service)(nil)

// PurgeHandler serves purge detection, restore and ignore.
type PurgeHandler struct {
	Service purgeService
}

func NewPurgeHandler(service purgeService) *PurgeHandler {
	return &PurgeHandler{Service: service}
}

func purgeStatus(err error) int {
	if errors.Is(err, backup.ErrActionNotFound) {
		return http.StatusBadRequest
	}
	return markerStatus(err)
}

type purgeCheckRequest struct {
	SectionID int64 `json:"sectionId,omitempty"`
	ShowID    int64 `json:"showId,omitempty"`
}

// PurgeCheck scans one section, or one show when showId is given instead.
func (h *PurgeHandler) PurgeCheck(w http.ResponseWriter, r *http.Request) {
	var req purgeCheckRequest
	if !decodeBody(w, r, &req) {
		return
	}

	switch {
	case req.ShowID != 0:
		tree, err := h.Service.GetPurgedShowMarkers(r.Context(), req.ShowID)
		if err != nil {
			writeError(w, purgeStatus(err), err)
			return
		}
		writeJSON(w, tree)
	case req.SectionID != 0:
		tree, err := h.Service.FindPurgedMarkers(r.Context(), req.SectionID)
		if err != nil {
			writeError(w, purgeStatus(err), err)
			return
		}
		writeJSON(w, tree)
	default:
		writeError(w, http.StatusBadRequest, errors.New("sectionId or showId is required"))
	}
}

func (h *PurgeHandler) AllPurges(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.AllPurges(r.Context())
	if err != nil {
		writeError(w, purgeStatus(err), err)
		return
	}
	writeJSON(w, result)
}

type markerIDsRequest struct {
	MarkerIDs []int64 `json:"markerIds"`
}

type restoreResponse struct {
	Restored []models.Marker `json:"restored"`
}

func (h *PurgeHandler) RestorePurge(w http.ResponseWriter, r *http.Request) {
	var req markerIDsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.MarkerIDs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one marker id is required"))
		return
	}

	restored, err := h.Service.RestoreMarkers(r.Context(), req.MarkerIDs)
	if err != nil {
		writeError(w, purgeStatus(err), err)
		return
	}
	writeJSON(w, restoreResponse{Restored: restored})
}

type ignoreResponse struct {
	Ignored int `json:"ignored"`
}

func (h *PurgeHandler) IgnorePurge(w http.ResponseWriter, r *http.Request) {
	var req markerIDsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.MarkerIDs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one marker id is required"))
		return
	}

	ignored, err := h.Service.IgnorePurgedMarkers(r.Context(), req.MarkerIDs)
	if err != nil {
		writeError(w, purgeStatus(err), err)
		return
	}
	writeJSON(w, ignoreResponse{Ignored: ignored})
}

func (h *PurgeHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
