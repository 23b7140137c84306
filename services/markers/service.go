package markers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"markeredit/internal/backup"
	"markeredit/internal/plexdb"
	"markeredit/models"
	"markeredit/services/timeexp"
	"markeredit/utils"
)

var (
	// ErrNotFound aliases the repo error so callers only import this
	// package.
	ErrNotFound = plexdb.ErrNotFound
	// ErrWrongMetadataType mirrors plexdb.ErrWrongMetadataType.
	ErrWrongMetadataType = plexdb.ErrWrongMetadataType
	// ErrInvalidBounds covers start >= end and negative start.
	ErrInvalidBounds = errors.New("marker start must be non-negative and before its end")
	// ErrInvalidType is returned for an unknown marker type.
	ErrInvalidType = errors.New("invalid marker type")
	// ErrInvalidResolveType is returned for an unknown conflict policy.
	ErrInvalidResolveType = errors.New("invalid resolve type")
)

// Service orchestrates marker mutations: every write goes through the Plex
// repo and is mirrored into the backup store. A process-wide mutex serializes
// our own writes so per-episode reconciliation is atomic; concurrent edits
// from other tools remain last-write-wins.
type Service struct {
	mu     sync.Mutex
	repo   *plexdb.Repo
	backup *backup.Store
}

// NewService wires the marker service to the Plex and backup databases.
func NewService(repo *plexdb.Repo, store *backup.Store) *Service {
	return &Service{repo: repo, backup: store}
}

func validateBounds(start, end int64) error {
	if start < 0 || start >= end {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidBounds, start, end)
	}
	return nil
}

// episodeFor loads the single episode/movie a marker id belongs to.
func (s *Service) episodeFor(ctx context.Context, parentID int64) (models.EpisodeData, error) {
	episodes, err := s.repo.EpisodesUnder(ctx, parentID)
	if err != nil {
		return models.EpisodeData{}, err
	}
	if len(episodes) != 1 {
		return models.EpisodeData{}, fmt.Errorf("%w: id %d is not an episode or movie", ErrWrongMetadataType, parentID)
	}
	return episodes[0], nil
}

// reindexEpisode recomputes contiguous marker indexes for one episode and
// persists any that moved.
func (s *Service) reindexEpisode(ctx context.Context, episodeID int64) ([]models.Marker, error) {
	grouped, err := s.repo.MarkersForParents(ctx, []int64{episodeID})
	if err != nil {
		return nil, err
	}
	current := grouped[episodeID]
	ordered := Reindex(current)

	var changed []models.Marker
	for i, m := range ordered {
		if i < len(current) && current[i].ID == m.ID && current[i].Index == m.Index {
			continue
		}
		changed = append(changed, m)
	}
	if err := s.repo.ApplyIndexes(ctx, changed); err != nil {
		return nil, err
	}
	return ordered, nil
}

// Add inserts a single marker. Conflicting markers are permitted here; the
// single-marker endpoint leaves overlap decisions to the caller.
func (s *Service) Add(ctx context.Context, parentID, start, end int64, markerType models.MarkerType, final bool) (models.Marker, error) {
	if !markerType.Valid() {
		return models.Marker{}, ErrInvalidType
	}
	if err := validateBounds(start, end); err != nil {
		return models.Marker{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	episode, err := s.episodeFor(ctx, parentID)
	if err != nil {
		return models.Marker{}, err
	}
	if episode.Duration > 0 {
		end = utils.ClampMs(end, 0, episode.Duration)
		if err := validateBounds(start, end); err != nil {
			return models.Marker{}, err
		}
	}

	inserted, err := s.repo.InsertMarker(ctx, models.Marker{
		ParentID:      parentID,
		SeasonID:      episode.SeasonID,
		ShowID:        episode.ShowID,
		Start:         start,
		End:           end,
		Type:          markerType,
		IsFinal:       final,
		CreatedByUser: true,
	})
	if err != nil {
		return models.Marker{}, err
	}

	ordered, err := s.reindexEpisode(ctx, parentID)
	if err != nil {
		return models.Marker{}, err
	}
	for _, m := range ordered {
		if m.ID == inserted.ID {
			inserted = m
			break
		}
	}

	if err := s.backup.RecordMarker(ctx, models.ActionAdd, inserted); err != nil {
		return models.Marker{}, err
	}
	return inserted, nil
}

// Edit rewrites a marker's bounds and type.
func (s *Service) Edit(ctx context.Context, id, start, end int64, markerType models.MarkerType, final, userCreated bool) (models.Marker, error) {
	if !markerType.Valid() {
		return models.Marker{}, ErrInvalidType
	}
	if err := validateBounds(start, end); err != nil {
		return models.Marker{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.MarkerByID(ctx, id)
	if err != nil {
		return models.Marker{}, err
	}

	episode, err := s.episodeFor(ctx, existing.ParentID)
	if err != nil {
		return models.Marker{}, err
	}
	if episode.Duration > 0 {
		end = utils.ClampMs(end, 0, episode.Duration)
		if err := validateBounds(start, end); err != nil {
			return models.Marker{}, err
		}
	}

	existing.Start = start
	existing.End = end
	existing.Type = markerType
	existing.IsFinal = final
	existing.CreatedByUser = existing.CreatedByUser || userCreated

	updated, err := s.repo.UpdateMarker(ctx, existing)
	if err != nil {
		return models.Marker{}, err
	}

	ordered, err := s.reindexEpisode(ctx, updated.ParentID)
	if err != nil {
		return models.Marker{}, err
	}
	for _, m := range ordered {
		if m.ID == updated.ID {
			updated = m
			break
		}
	}

	if err := s.backup.RecordMarker(ctx, models.ActionEdit, updated); err != nil {
		return models.Marker{}, err
	}
	return updated, nil
}

// Delete removes a marker and returns the deleted row.
func (s *Service) Delete(ctx context.Context, id int64) (models.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.MarkerByID(ctx, id)
	if err != nil {
		return models.Marker{}, err
	}
	if err := s.repo.DeleteMarker(ctx, id); err != nil {
		return models.Marker{}, err
	}
	if _, err := s.reindexEpisode(ctx, existing.ParentID); err != nil {
		return models.Marker{}, err
	}
	if err := s.backup.RecordMarker(ctx, models.ActionDelete, existing); err != nil {
		return models.Marker{}, err
	}
	return existing, nil
}

// Query returns the episodes under a root with their markers, for library
// navigation and the customisation UI.
func (s *Service) Query(ctx context.Context, rootID int64) ([]models.EpisodeData, error) {
	episodes, grouped, err := s.episodesWithMarkers(ctx, rootID)
	if err != nil {
		return nil, err
	}
	for i := range episodes {
		episodes[i].Markers = grouped[episodes[i].MetadataID]
	}
	return episodes, nil
}

// Chapters returns the chapter list of every episode under a root, keyed by
// episode id.
func (s *Service) Chapters(ctx context.Context, rootID int64) (map[int64][]models.ChapterData, error) {
	episodes, err := s.repo.EpisodesUnder(ctx, rootID)
	if err != nil {
		return nil, err
	}
	result := make(map[int64][]models.ChapterData, len(episodes))
	for _, ep := range episodes {
		chapters, err := s.repo.Chapters(ctx, ep.MetadataID)
		if err != nil {
			return nil, err
		}
		result[ep.MetadataID] = chapters
	}
	return result, nil
}

func (s *Service) episodesWithMarkers(ctx context.Context, rootID int64) ([]models.EpisodeData, map[int64][]models.Marker, error) {
	episodes, err := s.repo.EpisodesUnder(ctx, rootID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.MetadataID
	}
	grouped, err := s.repo.MarkersForParents(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return episodes, grouped, nil
}

// RestoreMarker re-inserts a purged marker from its backup snapshot, merging
// with any marker that has since grown over the same interval, and re-links
// the backup history to the new marker id.
func (s *Service) RestoreMarker(ctx context.Context, action models.MarkerAction) (models.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	episode, err := s.episodeFor(ctx, action.EpisodeID)
	if err != nil {
		return models.Marker{}, err
	}
	grouped, err := s.repo.MarkersForParents(ctx, []int64{action.EpisodeID})
	if err != nil {
		return models.Marker{}, err
	}

	duration := episode.Duration
	if duration == 0 {
		duration = action.End
	}
	res := ResolveConflicts(action.Start, action.End, duration, grouped[action.EpisodeID], action.Type, models.ResolveMerge)
	if res.Overflow {
		return models.Marker{}, fmt.Errorf("%w: restored marker does not fit episode", ErrInvalidBounds)
	}

	restored, err := s.applyResolution(ctx, episode, res, action.Type, action.IsFinal)
	if err != nil {
		return models.Marker{}, err
	}
	if err := s.backup.MarkRestored(ctx, action.MarkerID, restored); err != nil {
		return models.Marker{}, err
	}
	return restored, nil
}

// applyResolution performs the mutations a Resolution describes for one
// episode and returns the resulting marker (inserted or expanded), after
// reindexing.
func (s *Service) applyResolution(ctx context.Context, episode models.EpisodeData, res Resolution, markerType models.MarkerType, final bool) (models.Marker, error) {
	for _, victim := range res.Delete {
		if err := s.repo.DeleteMarker(ctx, victim.ID); err != nil {
			return models.Marker{}, err
		}
		if err := s.backup.RecordMarker(ctx, models.ActionDelete, victim); err != nil {
			return models.Marker{}, err
		}
	}

	var result models.Marker
	var err error
	op := models.ActionEdit
	if res.Expand != nil {
		result, err = s.repo.UpdateMarker(ctx, *res.Expand)
	} else {
		op = models.ActionAdd
		result, err = s.repo.InsertMarker(ctx, models.Marker{
			ParentID:      episode.MetadataID,
			SeasonID:      episode.SeasonID,
			ShowID:        episode.ShowID,
			Start:         res.Start,
			End:           res.End,
			Type:          markerType,
			IsFinal:       final,
			CreatedByUser: true,
		})
	}
	if err != nil {
		return models.Marker{}, err
	}

	// Refetch after reindexing so the recorded action carries the full
	// hierarchy ids and the final index.
	ordered, err := s.reindexEpisode(ctx, episode.MetadataID)
	if err != nil {
		return models.Marker{}, err
	}
	for _, m := range ordered {
		if m.ID == result.ID {
			result = m
			break
		}
	}
	if err := s.backup.RecordMarker(ctx, op, result); err != nil {
		return models.Marker{}, err
	}
	return result, nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// expressionBounds evaluates a start/end expression pair against one
// episode's markers. The start expression's type tag, when present,
// overrides the requested marker type.
func expressionBounds(startExpr, endExpr *timeexp.Expression, markers []models.Marker) (start, end int64, err error) {
	start, err = startExpr.MS(markers)
	if err != nil {
		return 0, 0, err
	}
	end, err = endExpr.MS(markers)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
