package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"markeredit/models"
	"markeredit/services/markers"
	"markeredit/services/timeexp"
)

type bulkService interface {
	CheckShift(ctx context.Context, req markers.ShiftRequest) (models.ShiftResult, error)
	Shift(ctx context.Context, req markers.ShiftRequest) (models.ShiftResult, error)
	BulkAdd(ctx context.Context, req markers.BulkAddRequest) (models.BulkAddResult, error)
	BulkDelete(ctx context.Context, req markers.BulkDeleteRequest) (models.BulkDeleteResult, error)
	NukeSection(ctx context.Context, sectionID int64, deleteType models.MarkerType) (models.NukeResult, error)
}

var _ bulkService = (*markers.Service)(nil)

// purgeCache is the slice of the purge service bulk operations touch: a nuke
// has to evict the section's cached purge tree.
type purgeCache interface {
	DropSection(sectionID int64) int
}

// BulkHandler serves the shift, bulk add and bulk delete orchestration
// endpoints.
type BulkHandler struct {
	Bulk  bulkService
	Cache purgeCache
}

func NewBulkHandler(bulk bulkService, cache purgeCache) *BulkHandler {
	return &BulkHandler{Bulk: bulk, Cache: cache}
}

// shiftDelta is a shift amount in milliseconds. It accepts a raw JSON number
// or timestamp text ("-0:03" shifts back three seconds).
type shiftDelta int64

func (d *shiftDelta) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		expr, err := timeexp.Parse(text, timeexp.Options{AllowNegative: true})
		if err != nil {
			return err
		}
		ms, ok := expr.PlainMs()
		if !ok {
			return &timeexp.ParseError{Reason: timeexp.ReasonBadTimestamp, Input: text}
		}
		*d = shiftDelta(ms)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = shiftDelta(ms)
	return nil
}

type shiftRequest struct {
	ID         int64             `json:"id"`
	StartShift shiftDelta        `json:"startShift"`
	EndShift   shiftDelta        `json:"endShift"`
	ApplyTo    models.MarkerType `json:"applyTo"`
	Force      bool              `json:"force"`
	Ignored    []int64           `json:"ignored"`
}

func (req shiftRequest) toService() markers.ShiftRequest {
	applyTo := req.ApplyTo
	if applyTo == "" {
		applyTo = models.MarkerTypeAll
	}
	return markers.ShiftRequest{
		RootID:     req.ID,
		StartShift: int64(req.StartShift),
		EndShift:   int64(req.EndShift),
		ApplyTo:    applyTo,
		Force:      req.Force,
		Ignored:    req.Ignored,
	}
}

func (h *BulkHandler) CheckShift(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.Bulk.CheckShift(r.Context(), req.toService())
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, result)
}

func (h *BulkHandler) Shift(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.Bulk.Shift(r.Context(), req.toService())
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, result)
}

type bulkAddRequest struct {
	ID      int64              `json:"id"`
	Start   string             `json:"start"`
	End     string             `json:"end"`
	Type    models.MarkerType  `json:"markerType"`
	Final   bool               `json:"final"`
	Resolve models.ResolveType `json:"resolveType"`
	Ignored []int64            `json:"ignored"`
	DryRun  bool               `json:"dryRun"`
}

func (h *BulkHandler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	var req bulkAddRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.Bulk.BulkAdd(r.Context(), markers.BulkAddRequest{
		RootID:  req.ID,
		Start:   req.Start,
		End:     req.End,
		Type:    req.Type,
		Final:   req.Final,
		Resolve: req.Resolve,
		Ignored: req.Ignored,
		DryRun:  req.DryRun,
	})
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, result)
}

type addCustomRequest struct {
	Type    models.MarkerType              `json:"markerType"`
	Final   bool                           `json:"final"`
	Resolve models.ResolveType             `json:"resolveType"`
	Markers map[int64]markers.CustomBounds `json:"markers"`
}

// AddCustom applies per-episode bounds from a multipart form. The payload can
// grow large for long shows, so the form field is JSON and the response is
// gzip-compressed when the client accepts it.
func (h *BulkHandler) AddCustom(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload := r.FormValue("payload")
	if payload == "" {
		writeError(w, http.StatusBadRequest, errors.New("payload form field is required"))
		return
	}

	var req addCustomRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Markers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one episode is required"))
		return
	}

	result, err := h.Bulk.BulkAdd(r.Context(), markers.BulkAddRequest{
		Type:    req.Type,
		Final:   req.Final,
		Resolve: req.Resolve,
		Custom:  req.Markers,
	})
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeGzipJSON(w, r, result)
}

type bulkDeleteRequest struct {
	ID      int64             `json:"id"`
	DryRun  bool              `json:"dryRun"`
	ApplyTo models.MarkerType `json:"applyTo"`
	Ignored []int64           `json:"ignored"`
}

func (h *BulkHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	applyTo := req.ApplyTo
	if applyTo == "" {
		applyTo = models.MarkerTypeAll
	}

	result, err := h.Bulk.BulkDelete(r.Context(), markers.BulkDeleteRequest{
		RootID:  req.ID,
		DryRun:  req.DryRun,
		ApplyTo: applyTo,
		Ignored: req.Ignored,
	})
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	writeJSON(w, result)
}

type nukeRequest struct {
	SectionID  int64             `json:"sectionId"`
	DeleteType models.MarkerType `json:"deleteType"`
}

func (h *BulkHandler) NukeSection(w http.ResponseWriter, r *http.Request) {
	var req nukeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deleteType := req.DeleteType
	if deleteType == "" {
		deleteType = models.MarkerTypeAll
	}

	result, err := h.Bulk.NukeSection(r.Context(), req.SectionID, deleteType)
	if err != nil {
		writeError(w, markerStatus(err), err)
		return
	}
	if h.Cache != nil {
		result.CacheDeleted = h.Cache.DropSection(req.SectionID)
	}
	writeJSON(w, result)
}

func (h *BulkHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
