package markers_test

import (
	"testing"

	"markeredit/models"
	"markeredit/services/markers"
)

func intro(id int64, index int, start, end int64) models.Marker {
	return models.Marker{ID: id, Index: index, Start: start, End: end, Type: models.MarkerTypeIntro}
}

func TestResolveNoConflict(t *testing.T) {
	existing := []models.Marker{intro(1, 0, 100000, 130000)}
	res := markers.ResolveConflicts(0, 1000, 600000, existing, models.MarkerTypeIntro, models.ResolveFail)
	if !res.Apply || !res.IsAdd || res.Conflict {
		t.Fatalf("expected clean add, got %+v", res)
	}
	if res.Start != 0 || res.End != 1000 {
		t.Fatalf("unexpected bounds %d-%d", res.Start, res.End)
	}
}

func TestResolveDifferentTypesDoNotConflict(t *testing.T) {
	existing := []models.Marker{
		{ID: 1, Index: 0, Start: 0, End: 30000, Type: models.MarkerTypeCredits},
	}
	res := markers.ResolveConflicts(0, 30000, 600000, existing, models.MarkerTypeIntro, models.ResolveFail)
	if res.Conflict {
		t.Fatalf("credits marker should not conflict with an intro candidate: %+v", res)
	}
}

func TestResolveFailAborts(t *testing.T) {
	existing := []models.Marker{intro(1, 0, 500, 2000)}
	res := markers.ResolveConflicts(0, 1000, 600000, existing, models.MarkerTypeIntro, models.ResolveFail)
	if !res.Failed || res.Apply || !res.Conflict {
		t.Fatalf("expected failed resolution, got %+v", res)
	}
}

func TestResolveIgnoreSkips(t *testing.T) {
	existing := []models.Marker{intro(1, 0, 500, 2000)}
	res := markers.ResolveConflicts(0, 1000, 600000, existing, models.MarkerTypeIntro, models.ResolveIgnore)
	if !res.Skip || res.Apply {
		t.Fatalf("expected skipped episode, got %+v", res)
	}
}

func TestResolveOverwriteDeletesAllConflicts(t *testing.T) {
	existing := []models.Marker{
		intro(1, 0, 500, 2000),
		intro(2, 1, 2500, 4000),
		intro(3, 2, 100000, 130000),
	}
	res := markers.ResolveConflicts(0, 5000, 600000, existing, models.MarkerTypeIntro, models.ResolveOverwrite)
	if !res.Apply || !res.IsAdd {
		t.Fatalf("expected applied overwrite, got %+v", res)
	}
	if len(res.Delete) != 2 {
		t.Fatalf("expected both overlapped markers deleted, got %d", len(res.Delete))
	}
	if res.Start != 0 || res.End != 5000 {
		t.Fatalf("overwrite must keep candidate bounds, got %d-%d", res.Start, res.End)
	}
}

func TestResolveMergeSwallowsOne(t *testing.T) {
	// Candidate [a,b) against an existing [b-eps, c) must yield one
	// marker [a,c).
	existing := []models.Marker{intro(7, 0, 900, 30000)}
	res := markers.ResolveConflicts(0, 1000, 600000, existing, models.MarkerTypeIntro, models.ResolveMerge)
	if !res.Apply || res.IsAdd {
		t.Fatalf("expected merge into existing marker, got %+v", res)
	}
	if res.Expand == nil || res.Expand.ID != 7 {
		t.Fatalf("expected marker 7 expanded, got %+v", res.Expand)
	}
	if res.Expand.Start != 0 || res.Expand.End != 30000 {
		t.Fatalf("expected union [0,30000), got [%d,%d)", res.Expand.Start, res.Expand.End)
	}
	if len(res.Delete) != 0 {
		t.Fatalf("nothing should be deleted, got %d", len(res.Delete))
	}
}

func TestResolveMergeSwallowsTwo(t *testing.T) {
	existing := []models.Marker{
		intro(1, 0, 1000, 2000),
		intro(2, 1, 3000, 4000),
	}
	res := markers.ResolveConflicts(500, 3500, 600000, existing, models.MarkerTypeIntro, models.ResolveMerge)
	if !res.Apply || res.Expand == nil {
		t.Fatalf("expected merge, got %+v", res)
	}
	if res.Expand.ID != 1 {
		t.Fatalf("lowest-index marker must survive, got id %d", res.Expand.ID)
	}
	if res.Expand.Start != 500 || res.Expand.End != 4000 {
		t.Fatalf("expected union [500,4000), got [%d,%d)", res.Expand.Start, res.Expand.End)
	}
	if len(res.Delete) != 1 || res.Delete[0].ID != 2 {
		t.Fatalf("expected marker 2 deleted, got %+v", res.Delete)
	}
}

func TestResolveMergeAcrossGaps(t *testing.T) {
	existing := []models.Marker{
		intro(1, 0, 1000, 2000),
		intro(2, 1, 5000, 6000),
		intro(3, 2, 9000, 10000),
	}
	res := markers.ResolveConflicts(1500, 9500, 600000, existing, models.MarkerTypeIntro, models.ResolveMerge)
	if res.Expand == nil || res.Expand.Start != 1000 || res.Expand.End != 10000 {
		t.Fatalf("expected union [1000,10000), got %+v", res.Expand)
	}
	if len(res.Delete) != 2 {
		t.Fatalf("expected two swallowed markers deleted, got %d", len(res.Delete))
	}
}

func TestResolveTruncatesToDuration(t *testing.T) {
	res := markers.ResolveConflicts(500000, 9999999, 600000, nil, models.MarkerTypeIntro, models.ResolveFail)
	if !res.Apply {
		t.Fatalf("expected applied, got %+v", res)
	}
	if res.End != 600000 {
		t.Fatalf("expected end clamped to duration, got %d", res.End)
	}
}

func TestResolveOverflowOnInversion(t *testing.T) {
	res := markers.ResolveConflicts(700000, 9999999, 600000, nil, models.MarkerTypeIntro, models.ResolveFail)
	if !res.Overflow || res.Apply {
		t.Fatalf("expected overflow, got %+v", res)
	}
}

func TestReindexContiguous(t *testing.T) {
	ms := []models.Marker{
		intro(3, 5, 100000, 130000),
		intro(1, 2, 0, 30000),
		intro(2, 9, 50000, 60000),
	}
	out := markers.Reindex(ms)
	for i, m := range out {
		if m.Index != i {
			t.Fatalf("expected index %d, got %d", i, m.Index)
		}
	}
	if out[0].ID != 1 || out[1].ID != 2 || out[2].ID != 3 {
		t.Fatalf("expected start-time ordering, got %+v", out)
	}
}
