package markers

import (
	"context"
	"log"

	"markeredit/models"
	"markeredit/utils"
)

// ShiftRequest moves every matching marker under a root by a fixed delta.
// StartShift and EndShift may differ, which trims or grows markers instead of
// sliding them.
type ShiftRequest struct {
	RootID     int64
	StartShift int64
	EndShift   int64
	// ApplyTo filters by marker type; MarkerTypeAll shifts everything.
	ApplyTo models.MarkerType
	// Force applies the shift even when an episode has more than one
	// matching marker.
	Force bool
	// Ignored lists marker ids excluded from the operation.
	Ignored []int64
}

// shiftPlan is the per-request analysis shared by Shift and CheckShift.
type shiftPlan struct {
	episodes map[int64]models.EpisodeData
	// targets holds the matching markers per episode, pre-shift.
	targets  map[int64][]models.Marker
	conflict bool
	overflow bool
}

func (s *Service) planShift(ctx context.Context, req ShiftRequest) (*shiftPlan, error) {
	episodes, grouped, err := s.episodesWithMarkers(ctx, req.RootID)
	if err != nil {
		return nil, err
	}

	ignored := idSet(req.Ignored)
	plan := &shiftPlan{
		episodes: make(map[int64]models.EpisodeData, len(episodes)),
		targets:  make(map[int64][]models.Marker),
	}

	for _, ep := range episodes {
		var matching []models.Marker
		for _, m := range grouped[ep.MetadataID] {
			if _, skip := ignored[m.ID]; skip {
				continue
			}
			if !req.ApplyTo.Matches(m.Type) {
				continue
			}
			matching = append(matching, m)
		}
		if len(matching) == 0 {
			continue
		}
		if len(matching) > 1 {
			plan.conflict = true
		}

		for _, m := range matching {
			newStart := utils.ClampMs(m.Start+req.StartShift, 0, ep.Duration)
			newEnd := utils.ClampMs(m.End+req.EndShift, 0, ep.Duration)
			if newStart >= newEnd {
				plan.overflow = true
			}
		}

		ep.Markers = grouped[ep.MetadataID]
		plan.episodes[ep.MetadataID] = ep
		plan.targets[ep.MetadataID] = matching
	}
	return plan, nil
}

func (p *shiftPlan) result() models.ShiftResult {
	result := models.ShiftResult{
		Conflict:    p.conflict,
		Overflow:    p.overflow,
		AllMarkers:  []models.Marker{},
		EpisodeData: p.episodes,
	}
	for _, markers := range p.targets {
		result.AllMarkers = append(result.AllMarkers, markers...)
	}
	return result
}

// CheckShift analyses a shift without writing: the returned markers carry
// their current bounds and the conflict/overflow flags the live call would
// hit.
func (s *Service) CheckShift(ctx context.Context, req ShiftRequest) (models.ShiftResult, error) {
	plan, err := s.planShift(ctx, req)
	if err != nil {
		return models.ShiftResult{}, err
	}
	return plan.result(), nil
}

// Shift applies the delta to every matching marker. An episode with several
// matching markers blocks the whole operation unless Force is set; an
// inverted interval anywhere aborts it regardless.
func (s *Service) Shift(ctx context.Context, req ShiftRequest) (models.ShiftResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.planShift(ctx, req)
	if err != nil {
		return models.ShiftResult{}, err
	}
	if plan.overflow || (plan.conflict && !req.Force) {
		return plan.result(), nil
	}

	result := models.ShiftResult{
		Applied:     true,
		Conflict:    plan.conflict,
		AllMarkers:  []models.Marker{},
		EpisodeData: make(map[int64]models.EpisodeData, len(plan.episodes)),
	}

	for episodeID, targets := range plan.targets {
		ep := plan.episodes[episodeID]
		for _, m := range targets {
			m.Start = utils.ClampMs(m.Start+req.StartShift, 0, ep.Duration)
			m.End = utils.ClampMs(m.End+req.EndShift, 0, ep.Duration)
			updated, err := s.repo.UpdateMarker(ctx, m)
			if err != nil {
				return models.ShiftResult{}, err
			}
			if err := s.backup.RecordMarker(ctx, models.ActionEdit, updated); err != nil {
				return models.ShiftResult{}, err
			}
		}

		ordered, err := s.reindexEpisode(ctx, episodeID)
		if err != nil {
			return models.ShiftResult{}, err
		}

		shifted := idSet(markerIDs(targets))
		for _, m := range ordered {
			if _, ok := shifted[m.ID]; ok {
				result.AllMarkers = append(result.AllMarkers, m)
			}
		}
		ep.Markers = ordered
		result.EpisodeData[episodeID] = ep
	}
	log.Printf("[markers] shifted %d markers under %d by %s/%s",
		len(result.AllMarkers), req.RootID,
		utils.FormatMs(req.StartShift), utils.FormatMs(req.EndShift))
	return result, nil
}

func markerIDs(markers []models.Marker) []int64 {
	ids := make([]int64, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
	}
	return ids
}
