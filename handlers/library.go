package handlers

import (
	"context"
	"net/http"

	"markeredit/internal/plexdb"
	"markeredit/models"
)

type libraryService interface {
	Sections(ctx context.Context) ([]models.LibrarySection, error)
	Shows(ctx context.Context, sectionID int64) ([]models.ShowData, error)
	Seasons(ctx context.Context, showID int64) ([]models.SeasonData, error)
	EpisodesUnder(ctx context.Context, rootID int64) ([]models.EpisodeData, error)
	EpisodesInSection(ctx context.Context, sectionID int64) ([]models.EpisodeData, error)
}

var _ libraryService = (*plexdb.Repo)(nil)

// LibraryHandler serves library navigation: sections, shows, seasons and
// episodes, without markers. The marker-bearing variants live on
// MarkersHandler.Query.
type LibraryHandler struct {
	Service libraryService
}

func NewLibraryHandler(service libraryService) *LibraryHandler {
	return &LibraryHandler{Service: service}
}

func (h *LibraryHandler) Sections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.Service.Sections(r.Context())
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, sections)
}

func (h *LibraryHandler) Shows(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := queryID(w, r, "section")
	if !ok {
		return
	}

	shows, err := h.Service.Shows(r.Context(), sectionID)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, shows)
}

func (h *LibraryHandler) Seasons(w http.ResponseWriter, r *http.Request) {
	showID, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	seasons, err := h.Service.Seasons(r.Context(), showID)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, seasons)
}

// Episodes lists the markable leaf items under any root: an episode or movie
// itself, a season's episodes, or a whole show's.
func (h *LibraryHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	episodes, err := h.Service.EpisodesUnder(r.Context(), id)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, episodes)
}

// SectionItems lists every markable item of a library section, for movie
// libraries where there is no show/season level.
func (h *LibraryHandler) SectionItems(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := queryID(w, r, "section")
	if !ok {
		return
	}

	episodes, err := h.Service.EpisodesInSection(r.Context(), sectionID)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, episodes)
}

func (h *LibraryHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
