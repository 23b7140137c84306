package handlers_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"markeredit/handlers"
	"markeredit/models"
	"markeredit/services/markers"
)

type fakeBulkService struct {
	shiftResult  models.ShiftResult
	addResult    models.BulkAddResult
	deleteResult models.BulkDeleteResult
	nukeResult   models.NukeResult
	err          error

	lastShift   markers.ShiftRequest
	lastAdd     markers.BulkAddRequest
	lastDelete  markers.BulkDeleteRequest
	lastSection int64
	lastType    models.MarkerType
	shiftCalls  int
	checkCalls  int
}

func (f *fakeBulkService) CheckShift(ctx context.Context, req markers.ShiftRequest) (models.ShiftResult, error) {
	f.checkCalls++
	f.lastShift = req
	return f.shiftResult, f.err
}

func (f *fakeBulkService) Shift(ctx context.Context, req markers.ShiftRequest) (models.ShiftResult, error) {
	f.shiftCalls++
	f.lastShift = req
	return f.shiftResult, f.err
}

func (f *fakeBulkService) BulkAdd(ctx context.Context, req markers.BulkAddRequest) (models.BulkAddResult, error) {
	f.lastAdd = req
	return f.addResult, f.err
}

func (f *fakeBulkService) BulkDelete(ctx context.Context, req markers.BulkDeleteRequest) (models.BulkDeleteResult, error) {
	f.lastDelete = req
	return f.deleteResult, f.err
}

func (f *fakeBulkService) NukeSection(ctx context.Context, sectionID int64, deleteType models.MarkerType) (models.NukeResult, error) {
	f.lastSection = sectionID
	f.lastType = deleteType
	return f.nukeResult, f.err
}

type fakePurgeCache struct {
	dropped int64
	count   int
}

func (f *fakePurgeCache) DropSection(sectionID int64) int {
	f.dropped = sectionID
	return f.count
}

func TestBulkHandler_ShiftDefaultsApplyTo(t *testing.T) {
	svc := &fakeBulkService{shiftResult: models.ShiftResult{Applied: true}}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	rec := postJSON(t, handler.Shift, "/api/shift", map[string]any{
		"id": 5, "startShift": 3000, "endShift": 3000,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.shiftCalls != 1 || svc.checkCalls != 0 {
		t.Fatalf("expected one shift call, got shift=%d check=%d", svc.shiftCalls, svc.checkCalls)
	}
	if svc.lastShift.ApplyTo != models.MarkerTypeAll {
		t.Fatalf("applyTo should default to all, got %q", svc.lastShift.ApplyTo)
	}
	if svc.lastShift.RootID != 5 || svc.lastShift.StartShift != 3000 {
		t.Fatalf("request not forwarded: %+v", svc.lastShift)
	}
}

func TestBulkHandler_ShiftAcceptsTimestampText(t *testing.T) {
	svc := &fakeBulkService{shiftResult: models.ShiftResult{Applied: true}}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	rec := postJSON(t, handler.Shift, "/api/shift", map[string]any{
		"id": 5, "startShift": "-0:03", "endShift": "1500",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastShift.StartShift != -3000 || svc.lastShift.EndShift != 1500 {
		t.Fatalf("text deltas not parsed: %+v", svc.lastShift)
	}

	rec = postJSON(t, handler.Shift, "/api/shift", map[string]any{
		"id": 5, "startShift": "bogus", "endShift": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparsable delta, got %d", rec.Code)
	}
}

func TestBulkHandler_CheckShiftDoesNotApply(t *testing.T) {
	svc := &fakeBulkService{shiftResult: models.ShiftResult{Conflict: true}}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	rec := postJSON(t, handler.CheckShift, "/api/check_shift", map[string]any{
		"id": 5, "startShift": 3000, "endShift": 3000,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if svc.checkCalls != 1 || svc.shiftCalls != 0 {
		t.Fatalf("expected one check call, got shift=%d check=%d", svc.shiftCalls, svc.checkCalls)
	}

	var result models.ShiftResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Conflict || result.Applied {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestBulkHandler_BulkAddForwardsExpressions(t *testing.T) {
	svc := &fakeBulkService{addResult: models.BulkAddResult{Applied: true}}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	rec := postJSON(t, handler.BulkAdd, "/api/bulk_add", map[string]any{
		"id": 9, "start": "=I1E+5000", "end": "0:35", "markerType": "credits",
		"final": true, "resolveType": "merge",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastAdd.Start != "=I1E+5000" || svc.lastAdd.End != "0:35" {
		t.Fatalf("bounds not forwarded: %+v", svc.lastAdd)
	}
	if svc.lastAdd.Resolve != models.ResolveMerge || !svc.lastAdd.Final {
		t.Fatalf("options not forwarded: %+v", svc.lastAdd)
	}
}

func TestBulkHandler_AddCustom(t *testing.T) {
	svc := &fakeBulkService{addResult: models.BulkAddResult{Applied: true}}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	payload, err := json.Marshal(map[string]any{
		"markerType": "intro", "resolveType": "overwrite",
		"markers": map[string]any{
			"10": map[string]any{"start": "0:05", "end": "0:35"},
			"11": map[string]any{"start": "1000", "end": "31000"},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("payload", string(payload)); err != nil {
		t.Fatalf("write form field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/add_custom", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.AddCustom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastAdd.Custom) != 2 {
		t.Fatalf("expected 2 custom entries, got %d", len(svc.lastAdd.Custom))
	}
	if svc.lastAdd.Custom[10].Start != "0:05" {
		t.Fatalf("custom bounds not forwarded: %+v", svc.lastAdd.Custom)
	}

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, got %q", rec.Header().Get("Content-Encoding"))
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("open gzip reader: %v", err)
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	var result models.BulkAddResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Applied {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestBulkHandler_AddCustomRequiresPayload(t *testing.T) {
	handler := handlers.NewBulkHandler(&fakeBulkService{}, &fakePurgeCache{})

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/add_custom", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.AddCustom(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing payload, got %d", rec.Code)
	}
}

func TestBulkHandler_BulkDelete(t *testing.T) {
	svc := &fakeBulkService{
		deleteResult: models.BulkDeleteResult{
			DeletedMarkers: []models.Marker{{ID: 1}, {ID: 2}},
		},
	}
	handler := handlers.NewBulkHandler(svc, &fakePurgeCache{})

	rec := postJSON(t, handler.BulkDelete, "/api/bulk_delete", map[string]any{
		"id": 5, "applyTo": "intro", "dryRun": true,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if svc.lastDelete.ApplyTo != models.MarkerTypeIntro || !svc.lastDelete.DryRun {
		t.Fatalf("request not forwarded: %+v", svc.lastDelete)
	}
}

func TestBulkHandler_NukeSectionDropsCache(t *testing.T) {
	svc := &fakeBulkService{nukeResult: models.NukeResult{Deleted: 8, BackupDeleted: 8}}
	cache := &fakePurgeCache{count: 3}
	handler := handlers.NewBulkHandler(svc, cache)

	rec := postJSON(t, handler.NukeSection, "/api/nuke_section", map[string]any{
		"sectionId": 2,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if svc.lastSection != 2 || svc.lastType != models.MarkerTypeAll {
		t.Fatalf("request not forwarded: section=%d type=%q", svc.lastSection, svc.lastType)
	}
	if cache.dropped != 2 {
		t.Fatalf("cache not evicted for section, got %d", cache.dropped)
	}

	var result models.NukeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Deleted != 8 || result.CacheDeleted != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
