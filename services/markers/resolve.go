// Package markers implements single and bulk marker mutations against the
// Plex database: add/edit/delete, shift, bulk add with conflict resolution,
// bulk delete, and section nukes. Every mutation is mirrored into the backup
// database so purge detection can later tell what Plex removed behind our
// back.
package markers

import (
	"sort"

	"markeredit/models"
	"markeredit/utils"
)

// Resolution is the decision the conflict policy makes for one episode: which
// existing markers are deleted or expanded, and whether the episode is
// touched at all.
type Resolution struct {
	// Conflict is set when the candidate interval overlapped at least one
	// existing marker, regardless of whether the policy resolved it.
	Conflict bool
	// Apply is set when a mutation should proceed for this episode.
	Apply bool
	// Skip is set under the ignore policy: the episode is left untouched
	// and excluded from aggregation.
	Skip bool
	// Failed is set under the fail policy when a conflict was found.
	Failed bool
	// Overflow is set when clamping to the episode bounds inverted the
	// interval. Nothing is applied.
	Overflow bool
	// IsAdd distinguishes inserting a new marker from expanding an
	// existing one (merge).
	IsAdd bool
	// Expand, when non-nil, is the surviving marker a merge grows to the
	// union bounds. Its Start/End already hold the union.
	Expand *models.Marker
	// Delete lists existing markers removed as a side effect (all
	// conflicts for overwrite, all but the survivor for merge).
	Delete []models.Marker
	// Start/End are the final candidate bounds after clamping and any
	// merge union.
	Start, End int64
}

// ResolveConflicts decides what happens when the interval [start,end) of the
// given type is added to an episode with the listed markers. Only markers of
// the same type participate in conflict detection; an intro overlapping a
// credits marker is not a conflict.
func ResolveConflicts(start, end, duration int64, existing []models.Marker, markerType models.MarkerType, resolve models.ResolveType) Resolution {
	start = utils.ClampMs(start, 0, duration)
	end = utils.ClampMs(end, 0, duration)
	if start >= end {
		return Resolution{Overflow: true, Start: start, End: end}
	}

	var conflicts []models.Marker
	for _, m := range existing {
		if m.Type == markerType && m.Overlaps(start, end) {
			conflicts = append(conflicts, m)
		}
	}

	if len(conflicts) == 0 {
		return Resolution{Apply: true, IsAdd: true, Start: start, End: end}
	}

	res := Resolution{Conflict: true, Start: start, End: end}
	switch resolve {
	case models.ResolveFail:
		res.Failed = true
	case models.ResolveIgnore:
		res.Skip = true
	case models.ResolveOverwrite:
		res.Apply = true
		res.IsAdd = true
		res.Delete = conflicts
	case models.ResolveMerge:
		// The candidate swallows every conflicting marker: the
		// lowest-index one survives with the union bounds, the rest are
		// deleted.
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Index < conflicts[j].Index })
		union := conflicts[0]
		for _, m := range conflicts {
			if m.Start < res.Start {
				res.Start = m.Start
			}
			if m.End > res.End {
				res.End = m.End
			}
		}
		union.Start = res.Start
		union.End = res.End
		res.Apply = true
		res.Expand = &union
		res.Delete = conflicts[1:]
	default:
		// Unknown policy: report the conflict without resolving, the
		// caller surfaces it for customisation.
	}
	return res
}

// Reindex reassigns contiguous 0-based indexes ordered by start time and
// returns the markers in that order. Every mutation that adds or removes a
// marker within an episode runs through this.
func Reindex(markers []models.Marker) []models.Marker {
	sorted := make([]models.Marker, len(markers))
	copy(sorted, markers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})
	for i := range sorted {
		sorted[i].Index = i
	}
	return sorted
}
