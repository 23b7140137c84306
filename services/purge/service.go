// Package purge finds markers the Plex server's own scans removed behind our
// back. Every mutation this tool performs is recorded in the backup database;
// a purge scan diffs that history against the live taggings table and exposes
// the missing markers as a section/show/season/episode tree the UI can walk.
package purge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"markeredit/internal/backup"
	"markeredit/internal/plexdb"
	"markeredit/models"
	"markeredit/services/markers"
)

type nodeStatus int

const (
	statusUninitialized nodeStatus = iota
	// statusPartial marks a section where only some shows were scanned.
	statusPartial
	statusComplete
)

// allPurgesWorkers bounds the per-section fan-out of a full-library scan.
const allPurgesWorkers = 4

// location remembers where one purged marker sits in the cache tree.
type location struct {
	sectionID int64
	showID    int64
	seasonID  int64
	episodeID int64
}

// Service maintains the process-lifetime purge cache. Scans populate it
// lazily per section or per show; restore and ignore remove entries and
// keep every ancestor count consistent.
type Service struct {
	mu      sync.Mutex
	repo    *plexdb.Repo
	backup  *backup.Store
	markers *markers.Service

	sections      map[int64]*models.PurgedSection
	sectionStatus map[int64]nodeStatus
	showStatus    map[int64]nodeStatus
	index         map[int64]location
}

// NewService wires the purge scanner to the Plex repo, the backup history and
// the marker service used for restores.
func NewService(repo *plexdb.Repo, store *backup.Store, markerService *markers.Service) *Service {
	return &Service{
		repo:          repo,
		backup:        store,
		markers:       markerService,
		sections:      make(map[int64]*models.PurgedSection),
		sectionStatus: make(map[int64]nodeStatus),
		showStatus:    make(map[int64]nodeStatus),
		index:         make(map[int64]location),
	}
}

// FindPurgedMarkers returns the purge tree for one section, scanning the
// backup history on the first call and serving the cache afterwards.
func (s *Service) FindPurgedMarkers(ctx context.Context, sectionID int64) (*models.PurgedSection, error) {
	s.mu.Lock()
	if s.sectionStatus[sectionID] == statusComplete {
		defer s.mu.Unlock()
		return cloneSection(s.sections[sectionID]), nil
	}
	s.mu.Unlock()

	candidates, err := s.backup.Candidates(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	tree, err := s.buildTree(ctx, sectionID, candidates)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeSection(tree)
	s.sectionStatus[sectionID] = statusComplete
	for showID := range tree.Shows {
		s.showStatus[showID] = statusComplete
	}
	return cloneSection(tree), nil
}

// GetPurgedShowMarkers returns the purge subtree for one show. A show left
// half-populated by an earlier failed scan is discarded and refetched.
func (s *Service) GetPurgedShowMarkers(ctx context.Context, showID int64) (*models.PurgedShow, error) {
	sectionID, err := s.repo.SectionForItem(ctx, showID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.showStatus[showID] {
	case statusComplete:
		defer s.mu.Unlock()
		if section, ok := s.sections[sectionID]; ok {
			if show, ok := section.Shows[showID]; ok {
				return cloneShow(show), nil
			}
		}
		// Complete with no purges: an empty subtree.
		return &models.PurgedShow{MetadataID: showID, Seasons: map[int64]*models.PurgedSeason{}}, nil
	case statusPartial:
		s.dropShowLocked(sectionID, showID)
	}
	s.mu.Unlock()

	candidates, err := s.backup.CandidatesForShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	tree, err := s.buildTree(ctx, sectionID, candidates)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeShow(sectionID, showID, tree)
	s.showStatus[showID] = statusComplete
	if s.sectionStatus[sectionID] == statusUninitialized {
		s.sectionStatus[sectionID] = statusPartial
	}
	if show, ok := tree.Shows[showID]; ok {
		return cloneShow(show), nil
	}
	return &models.PurgedShow{MetadataID: showID, Seasons: map[int64]*models.PurgedSeason{}}, nil
}

// AllPurges scans every library section concurrently and returns the purge
// trees keyed by section id. Sections without purges are omitted.
func (s *Service) AllPurges(ctx context.Context) (map[int64]*models.PurgedSection, error) {
	sections, err := s.repo.Sections(ctx)
	if err != nil {
		return nil, err
	}

	var resultMu sync.Mutex
	result := make(map[int64]*models.PurgedSection)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(allPurgesWorkers)
	for _, section := range sections {
		sectionID := section.ID
		p.Go(func(ctx context.Context) error {
			tree, err := s.FindPurgedMarkers(ctx, sectionID)
			if err != nil {
				return fmt.Errorf("section %d: %w", sectionID, err)
			}
			if tree.Count == 0 {
				return nil
			}
			resultMu.Lock()
			result[sectionID] = tree
			resultMu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// RestoreMarkers re-adds the given purged markers to the Plex database and
// removes them from the cache. Restores are conflict-aware: a marker that has
// since been recreated over the same interval is merged, not duplicated.
func (s *Service) RestoreMarkers(ctx context.Context, markerIDs []int64) ([]models.Marker, error) {
	restored := make([]models.Marker, 0, len(markerIDs))
	for _, id := range markerIDs {
		action, err := s.actionFor(ctx, id)
		if err != nil {
			return restored, err
		}
		m, err := s.markers.RestoreMarker(ctx, action)
		if err != nil {
			return restored, fmt.Errorf("restore marker %d: %w", id, err)
		}
		restored = append(restored, m)

		s.mu.Lock()
		s.removeLocked(id)
		s.mu.Unlock()
	}
	return restored, nil
}

// IgnorePurgedMarkers permanently drops the given markers from purge
// consideration and returns how many were flagged.
func (s *Service) IgnorePurgedMarkers(ctx context.Context, markerIDs []int64) (int, error) {
	ignored, err := s.backup.MarkIgnored(ctx, markerIDs)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range markerIDs {
		s.removeLocked(id)
	}
	return ignored, nil
}

// DropSection evicts one section from the cache after a nuke and returns the
// number of purged markers it held.
func (s *Service) DropSection(sectionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if section, ok := s.sections[sectionID]; ok {
		count = section.Count
		for showID := range section.Shows {
			delete(s.showStatus, showID)
		}
	}
	delete(s.sections, sectionID)
	delete(s.sectionStatus, sectionID)
	for id, loc := range s.index {
		if loc.sectionID == sectionID {
			delete(s.index, id)
		}
	}
	return count
}

// actionFor resolves a purged marker id to its latest recorded action,
// preferring the cache over a history query.
func (s *Service) actionFor(ctx context.Context, markerID int64) (models.MarkerAction, error) {
	s.mu.Lock()
	if loc, ok := s.index[markerID]; ok {
		if ep := s.episodeAt(loc); ep != nil {
			if action, ok := ep.Actions[markerID]; ok {
				s.mu.Unlock()
				return *action, nil
			}
		}
	}
	s.mu.Unlock()
	return s.backup.LatestForMarker(ctx, markerID)
}

// buildTree diffs candidate actions against the live database and assembles
// the purge tree for everything that is gone.
func (s *Service) buildTree(ctx context.Context, sectionID int64, candidates []models.MarkerAction) (*models.PurgedSection, error) {
	ids := make([]int64, len(candidates))
	for i, a := range candidates {
		ids[i] = a.MarkerID
	}
	present, err := s.repo.ExistingMarkerIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	tree := &models.PurgedSection{
		SectionID: sectionID,
		Shows:     make(map[int64]*models.PurgedShow),
	}

	showTitles := make(map[int64]string)
	shows, err := s.repo.Shows(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	for _, show := range shows {
		showTitles[show.MetadataID] = show.Title
	}

	episodeCache := make(map[int64]models.EpisodeData)
	for i := range candidates {
		action := candidates[i]
		if present[action.MarkerID] {
			continue
		}

		episode, err := s.episodeData(ctx, action, episodeCache)
		if err != nil {
			return nil, err
		}

		show, ok := tree.Shows[action.ShowID]
		if !ok {
			show = &models.PurgedShow{
				MetadataID: action.ShowID,
				Title:      showTitles[action.ShowID],
				Seasons:    make(map[int64]*models.PurgedSeason),
			}
			tree.Shows[action.ShowID] = show
		}
		season, ok := show.Seasons[action.SeasonID]
		if !ok {
			season = &models.PurgedSeason{
				MetadataID: action.SeasonID,
				Index:      episode.SeasonIndex,
				Episodes:   make(map[int64]*models.PurgedEpisode),
			}
			show.Seasons[action.SeasonID] = season
		}
		leaf, ok := season.Episodes[action.EpisodeID]
		if !ok {
			leaf = &models.PurgedEpisode{
				EpisodeData: episode,
				Actions:     make(map[int64]*models.MarkerAction),
			}
			season.Episodes[action.EpisodeID] = leaf
		}

		leaf.Actions[action.MarkerID] = &action
		season.Count++
		show.Count++
		tree.Count++
	}
	return tree, nil
}

// episodeData loads one episode's metadata, falling back to the ids recorded
// in the action when the episode itself was deleted from the library.
func (s *Service) episodeData(ctx context.Context, action models.MarkerAction, cache map[int64]models.EpisodeData) (models.EpisodeData, error) {
	if ep, ok := cache[action.EpisodeID]; ok {
		return ep, nil
	}

	episodes, err := s.repo.EpisodesUnder(ctx, action.EpisodeID)
	if err != nil && !errors.Is(err, plexdb.ErrNotFound) {
		return models.EpisodeData{}, err
	}
	var ep models.EpisodeData
	if len(episodes) == 1 {
		ep = episodes[0]
	} else {
		ep = models.EpisodeData{
			MetadataID: action.EpisodeID,
			SeasonID:   action.SeasonID,
			ShowID:     action.ShowID,
		}
	}
	cache[action.EpisodeID] = ep
	return ep, nil
}

// storeSection replaces the cached tree for a section and reindexes it.
func (s *Service) storeSection(tree *models.PurgedSection) {
	if old, ok := s.sections[tree.SectionID]; ok {
		for id, loc := range s.index {
			if loc.sectionID == old.SectionID {
				delete(s.index, id)
			}
		}
	}
	s.sections[tree.SectionID] = tree
	s.indexSection(tree)
}

// mergeShow splices one freshly scanned show subtree into the section tree.
func (s *Service) mergeShow(sectionID, showID int64, scanned *models.PurgedSection) {
	section, ok := s.sections[sectionID]
	if !ok {
		section = &models.PurgedSection{
			SectionID: sectionID,
			Shows:     make(map[int64]*models.PurgedShow),
		}
		s.sections[sectionID] = section
	}

	show, ok := scanned.Shows[showID]
	if !ok {
		return
	}
	section.Shows[showID] = show
	section.Count += show.Count
	for seasonID, season := range show.Seasons {
		for episodeID, leaf := range season.Episodes {
			for markerID := range leaf.Actions {
				s.index[markerID] = location{
					sectionID: sectionID,
					showID:    showID,
					seasonID:  seasonID,
					episodeID: episodeID,
				}
			}
		}
	}
}

// dropShowLocked removes a show subtree and its index entries, adjusting the
// section count.
func (s *Service) dropShowLocked(sectionID, showID int64) {
	section, ok := s.sections[sectionID]
	if !ok {
		return
	}
	show, ok := section.Shows[showID]
	if !ok {
		return
	}
	section.Count -= show.Count
	delete(section.Shows, showID)
	for id, loc := range s.index {
		if loc.showID == showID {
			delete(s.index, id)
		}
	}
	s.showStatus[showID] = statusUninitialized
}

func (s *Service) indexSection(tree *models.PurgedSection) {
	for showID, show := range tree.Shows {
		for seasonID, season := range show.Seasons {
			for episodeID, leaf := range season.Episodes {
				for markerID := range leaf.Actions {
					s.index[markerID] = location{
						sectionID: tree.SectionID,
						showID:    showID,
						seasonID:  seasonID,
						episodeID: episodeID,
					}
				}
			}
		}
	}
}

func (s *Service) episodeAt(loc location) *models.PurgedEpisode {
	section, ok := s.sections[loc.sectionID]
	if !ok {
		return nil
	}
	show, ok := section.Shows[loc.showID]
	if !ok {
		return nil
	}
	season, ok := show.Seasons[loc.seasonID]
	if !ok {
		return nil
	}
	return season.Episodes[loc.episodeID]
}

// removeLocked deletes one marker from the cache tree, decrementing every
// ancestor count by one and pruning nodes that reach zero.
func (s *Service) removeLocked(markerID int64) {
	loc, ok := s.index[markerID]
	if !ok {
		return
	}
	delete(s.index, markerID)

	section, ok := s.sections[loc.sectionID]
	if !ok {
		return
	}
	show, ok := section.Shows[loc.showID]
	if !ok {
		return
	}
	season, ok := show.Seasons[loc.seasonID]
	if !ok {
		return
	}
	leaf, ok := season.Episodes[loc.episodeID]
	if !ok {
		return
	}
	if _, ok := leaf.Actions[markerID]; !ok {
		return
	}

	delete(leaf.Actions, markerID)
	season.Count--
	show.Count--
	section.Count--

	if len(leaf.Actions) == 0 {
		delete(season.Episodes, loc.episodeID)
	}
	if season.Count == 0 {
		delete(show.Seasons, loc.seasonID)
	}
	if show.Count == 0 {
		delete(section.Shows, loc.showID)
	}
}

func cloneSection(tree *models.PurgedSection) *models.PurgedSection {
	out := &models.PurgedSection{
		SectionID: tree.SectionID,
		Count:     tree.Count,
		Shows:     make(map[int64]*models.PurgedShow, len(tree.Shows)),
	}
	for id, show := range tree.Shows {
		out.Shows[id] = cloneShow(show)
	}
	return out
}

func cloneShow(show *models.PurgedShow) *models.PurgedShow {
	out := &models.PurgedShow{
		MetadataID: show.MetadataID,
		Title:      show.Title,
		Count:      show.Count,
		Seasons:    make(map[int64]*models.PurgedSeason, len(show.Seasons)),
	}
	for id, season := range show.Seasons {
		cs := &models.PurgedSeason{
			MetadataID: season.MetadataID,
			Index:      season.Index,
			Count:      season.Count,
			Episodes:   make(map[int64]*models.PurgedEpisode, len(season.Episodes)),
		}
		for epID, leaf := range season.Episodes {
			cl := &models.PurgedEpisode{
				EpisodeData: leaf.EpisodeData,
				Actions:     make(map[int64]*models.MarkerAction, len(leaf.Actions)),
			}
			for markerID, action := range leaf.Actions {
				a := *action
				cl.Actions[markerID] = &a
			}
			cs.Episodes[epID] = cl
		}
		out.Seasons[id] = cs
	}
	return out
}
