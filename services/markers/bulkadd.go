package markers

import (
	"context"
	"fmt"
	"sort"

	"markeredit/models"
	"markeredit/services/timeexp"
)

// CustomBounds is a caller-supplied start/end pair for one episode of an
// add_custom request. Both fields accept timestamp expressions.
type CustomBounds struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BulkAddRequest adds one marker to every episode under a root (or to an
// explicit per-episode map) with a conflict policy.
type BulkAddRequest struct {
	RootID int64
	// Start/End are timestamp expressions evaluated against each target
	// episode's markers. Ignored when Custom is set.
	Start string
	End   string
	Type  models.MarkerType
	Final bool
	Resolve models.ResolveType
	// Ignored lists episode ids excluded from the operation.
	Ignored []int64
	DryRun  bool
	// Custom maps episode id to explicit bounds; when non-nil it defines
	// the target set instead of RootID's subtree.
	Custom map[int64]CustomBounds
}

// episodePlan is the resolved decision for one episode of a bulk add.
type episodePlan struct {
	episode  models.EpisodeData
	existing []models.Marker
	res      Resolution
	markerType models.MarkerType
	start, end int64
}

// prospectiveMarker is the marker a live run of this plan would persist: the
// expanded survivor for a merge, otherwise a fresh insert with the resolved
// bounds. The id and index are unset, no row exists yet.
func (p episodePlan) prospectiveMarker(final bool) models.Marker {
	if p.res.Expand != nil {
		return *p.res.Expand
	}
	return models.Marker{
		ParentID:      p.episode.MetadataID,
		SeasonID:      p.episode.SeasonID,
		ShowID:        p.episode.ShowID,
		Start:         p.res.Start,
		End:           p.res.End,
		Type:          p.markerType,
		IsFinal:       final,
		CreatedByUser: true,
	}
}

// BulkAdd fans the request out over every resolved episode, applies the
// conflict policy per episode, and aggregates the outcomes. Under the fail
// policy any conflict turns the whole request into a report; under ignore,
// conflicted episodes are skipped while the rest proceed.
func (s *Service) BulkAdd(ctx context.Context, req BulkAddRequest) (models.BulkAddResult, error) {
	if !req.Resolve.Valid() {
		return models.BulkAddResult{}, ErrInvalidResolveType
	}
	if !req.Type.Valid() {
		return models.BulkAddResult{}, ErrInvalidType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plans, ignoredEpisodes, err := s.planBulkAdd(ctx, req)
	if err != nil {
		return models.BulkAddResult{}, err
	}

	result := models.BulkAddResult{
		Applied:         false,
		EpisodeMap:      make(map[int64]models.BulkAddEpisode, len(plans)),
		IgnoredEpisodes: ignoredEpisodes,
	}

	failed := false
	for _, plan := range plans {
		if plan.res.Conflict {
			result.Conflict = true
		}
		if plan.res.Failed || plan.res.Overflow {
			failed = true
		}
	}

	// Report-only outcomes: a dry run, or an unresolved conflict under the
	// fail policy. Nothing mutates, but each resolvable episode still carries
	// the marker the live run would produce.
	if req.DryRun || failed {
		for _, plan := range plans {
			if plan.res.Skip {
				continue
			}
			entry := models.BulkAddEpisode{
				EpisodeData:     plan.episode,
				ExistingMarkers: plan.existing,
				IsAdd:           plan.res.IsAdd,
				DeletedMarkers:  plan.res.Delete,
			}
			if plan.res.Apply {
				would := plan.prospectiveMarker(req.Final)
				entry.ChangedMarker = &would
			}
			result.EpisodeMap[plan.episode.MetadataID] = entry
		}
		return result, nil
	}

	for _, plan := range plans {
		if plan.res.Skip || plan.res.Overflow {
			continue
		}

		applied, err := s.applyResolution(ctx, plan.episode, plan.res, plan.markerType, req.Final)
		if err != nil {
			return models.BulkAddResult{}, err
		}

		grouped, err := s.repo.MarkersForParents(ctx, []int64{plan.episode.MetadataID})
		if err != nil {
			return models.BulkAddResult{}, err
		}
		episode := plan.episode
		episode.Markers = grouped[episode.MetadataID]

		result.EpisodeMap[episode.MetadataID] = models.BulkAddEpisode{
			EpisodeData:     episode,
			ExistingMarkers: plan.existing,
			ChangedMarker:   &applied,
			IsAdd:           plan.res.IsAdd,
			DeletedMarkers:  plan.res.Delete,
		}
	}
	result.Applied = true
	return result, nil
}

func (s *Service) planBulkAdd(ctx context.Context, req BulkAddRequest) ([]episodePlan, []int64, error) {
	var episodes []models.EpisodeData
	var grouped map[int64][]models.Marker
	var err error

	if req.Custom != nil {
		episodes, grouped, err = s.customEpisodes(ctx, req.Custom)
	} else {
		episodes, grouped, err = s.episodesWithMarkers(ctx, req.RootID)
	}
	if err != nil {
		return nil, nil, err
	}

	var startExpr, endExpr *timeexp.Expression
	if req.Custom == nil {
		startExpr, err = timeexp.Parse(req.Start, timeexp.Options{})
		if err != nil {
			return nil, nil, err
		}
		endExpr, err = timeexp.Parse(req.End, timeexp.Options{IsEnd: true})
		if err != nil {
			return nil, nil, err
		}
	}

	ignored := idSet(req.Ignored)
	var ignoredEpisodes []int64
	var plans []episodePlan

	for _, ep := range episodes {
		if _, skip := ignored[ep.MetadataID]; skip {
			ignoredEpisodes = append(ignoredEpisodes, ep.MetadataID)
			continue
		}

		existing := grouped[ep.MetadataID]
		plan := episodePlan{episode: ep, existing: existing, markerType: req.Type}

		epStart, epEnd := startExpr, endExpr
		if req.Custom != nil {
			bounds := req.Custom[ep.MetadataID]
			epStart, err = timeexp.Parse(bounds.Start, timeexp.Options{})
			if err != nil {
				return nil, nil, fmt.Errorf("episode %d: %w", ep.MetadataID, err)
			}
			epEnd, err = timeexp.Parse(bounds.End, timeexp.Options{IsEnd: true})
			if err != nil {
				return nil, nil, fmt.Errorf("episode %d: %w", ep.MetadataID, err)
			}
		}

		if tag := epStart.TypeTag(); tag != "" {
			plan.markerType = tag
		}

		plan.start, plan.end, err = expressionBounds(epStart, epEnd, existing)
		if err != nil {
			return nil, nil, fmt.Errorf("episode %d: %w", ep.MetadataID, err)
		}

		plan.res = ResolveConflicts(plan.start, plan.end, ep.Duration, existing, plan.markerType, req.Resolve)
		plans = append(plans, plan)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].episode.MetadataID < plans[j].episode.MetadataID
	})
	return plans, ignoredEpisodes, nil
}

// customEpisodes resolves the explicit episode set of an add_custom request.
func (s *Service) customEpisodes(ctx context.Context, custom map[int64]CustomBounds) ([]models.EpisodeData, map[int64][]models.Marker, error) {
	ids := make([]int64, 0, len(custom))
	for id := range custom {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	episodes := make([]models.EpisodeData, 0, len(ids))
	for _, id := range ids {
		ep, err := s.episodeFor(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		episodes = append(episodes, ep)
	}

	grouped, err := s.repo.MarkersForParents(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return episodes, grouped, nil
}
