package markers

import (
	"context"

	"markeredit/models"
)

// BulkDeleteRequest removes every matching marker under a root.
type BulkDeleteRequest struct {
	RootID int64
	DryRun bool
	// ApplyTo filters by marker type; MarkerTypeAll matches everything.
	ApplyTo models.MarkerType
	// Ignored lists marker ids to keep.
	Ignored []int64
}

// BulkDelete partitions the markers under the root into kept and deleted
// sets. A dry run returns the partition without mutating; a live run deletes
// the doomed set and reindexes every touched episode.
func (s *Service) BulkDelete(ctx context.Context, req BulkDeleteRequest) (models.BulkDeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	episodes, grouped, err := s.episodesWithMarkers(ctx, req.RootID)
	if err != nil {
		return models.BulkDeleteResult{}, err
	}

	ignored := idSet(req.Ignored)
	result := models.BulkDeleteResult{
		Markers:        []models.Marker{},
		DeletedMarkers: []models.Marker{},
		EpisodeData:    make(map[int64]models.EpisodeData, len(episodes)),
	}

	doomedByEpisode := make(map[int64][]models.Marker)
	for _, ep := range episodes {
		markers := grouped[ep.MetadataID]
		if len(markers) == 0 {
			continue
		}
		for _, m := range markers {
			_, keep := ignored[m.ID]
			if keep || !req.ApplyTo.Matches(m.Type) {
				result.Markers = append(result.Markers, m)
				continue
			}
			result.DeletedMarkers = append(result.DeletedMarkers, m)
			doomedByEpisode[ep.MetadataID] = append(doomedByEpisode[ep.MetadataID], m)
		}
		ep.Markers = markers
		result.EpisodeData[ep.MetadataID] = ep
	}

	if req.DryRun {
		return result, nil
	}

	for episodeID, doomed := range doomedByEpisode {
		for _, m := range doomed {
			if err := s.repo.DeleteMarker(ctx, m.ID); err != nil {
				return models.BulkDeleteResult{}, err
			}
			if err := s.backup.RecordMarker(ctx, models.ActionDelete, m); err != nil {
				return models.BulkDeleteResult{}, err
			}
		}
		ordered, err := s.reindexEpisode(ctx, episodeID)
		if err != nil {
			return models.BulkDeleteResult{}, err
		}
		ep := result.EpisodeData[episodeID]
		ep.Markers = ordered
		result.EpisodeData[episodeID] = ep
	}
	return result, nil
}

// NukeSection deletes every marker of a section (optionally one type only)
// from both the Plex database and the backup history. The purge cache entry
// for the section is dropped by the caller.
func (s *Service) NukeSection(ctx context.Context, sectionID int64, deleteType models.MarkerType) (models.NukeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.repo.DeleteMarkersInSection(ctx, sectionID, deleteType)
	if err != nil {
		return models.NukeResult{}, err
	}
	backupDeleted, err := s.backup.DeleteSection(ctx, sectionID)
	if err != nil {
		return models.NukeResult{}, err
	}
	return models.NukeResult{Deleted: deleted, BackupDeleted: backupDeleted}, nil
}
