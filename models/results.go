package models

// ResolveType is the conflict policy for bulk add: what happens when the new
// interval overlaps markers an episode already has.
type ResolveType string

const (
	ResolveFail      ResolveType = "fail"
	ResolveMerge     ResolveType = "merge"
	ResolveOverwrite ResolveType = "overwrite"
	ResolveIgnore    ResolveType = "ignore"
)

// Valid reports whether r is a known resolve policy.
func (r ResolveType) Valid() bool {
	switch r {
	case ResolveFail, ResolveMerge, ResolveOverwrite, ResolveIgnore:
		return true
	}
	return false
}

// ShiftResult is the outcome of a shift or check_shift request. When Applied
// is false the caller inspects Conflict/Overflow plus EpisodeData to decide
// whether to retry with force or customise per episode.
type ShiftResult struct {
	Applied     bool                  `json:"applied"`
	Conflict    bool                  `json:"conflict"`
	Overflow    bool                  `json:"overflow"`
	AllMarkers  []Marker              `json:"allMarkers"`
	EpisodeData map[int64]EpisodeData `json:"episodeData,omitempty"`
}

// BulkAddEpisode is the per-episode slice of a BulkAddResult.
type BulkAddEpisode struct {
	EpisodeData     EpisodeData `json:"episodeData"`
	ExistingMarkers []Marker    `json:"existingMarkers"`
	ChangedMarker   *Marker     `json:"changedMarker,omitempty"`
	// IsAdd distinguishes a fresh insert from a merge that expanded an
	// existing marker.
	IsAdd          bool     `json:"isAdd,omitempty"`
	DeletedMarkers []Marker `json:"deletedMarkers,omitempty"`
}

// BulkAddResult aggregates a bulk add over every touched episode.
type BulkAddResult struct {
	Applied         bool                     `json:"applied"`
	Conflict        bool                     `json:"conflict"`
	EpisodeMap      map[int64]BulkAddEpisode `json:"episodeMap"`
	IgnoredEpisodes []int64                  `json:"ignoredEpisodes,omitempty"`
}

// BulkDeleteResult partitions the markers under a root into survivors and
// deletions. In dry-run mode DeletedMarkers is what would be deleted.
type BulkDeleteResult struct {
	Markers        []Marker              `json:"markers"`
	DeletedMarkers []Marker              `json:"deletedMarkers"`
	EpisodeData    map[int64]EpisodeData `json:"episodeData,omitempty"`
}

// PurgedEpisode is a leaf of the purge tree: the purged marker actions for one
// episode, keyed by marker id.
type PurgedEpisode struct {
	EpisodeData EpisodeData             `json:"episodeData"`
	Actions     map[int64]*MarkerAction `json:"actions"`
}

// PurgedSeason groups purged episodes beneath one season.
type PurgedSeason struct {
	MetadataID int64                    `json:"metadataId"`
	Index      int                      `json:"index"`
	Count      int                      `json:"count"`
	Episodes   map[int64]*PurgedEpisode `json:"episodes"`
}

// PurgedShow groups purged seasons beneath one show.
type PurgedShow struct {
	MetadataID int64                   `json:"metadataId"`
	Title      string                  `json:"title"`
	Count      int                     `json:"count"`
	Seasons    map[int64]*PurgedSeason `json:"seasons"`
}

// PurgedSection is the root of the purge tree for one library section.
type PurgedSection struct {
	SectionID int64                 `json:"sectionId"`
	Count     int                   `json:"count"`
	Shows     map[int64]*PurgedShow `json:"shows"`
}

// NukeResult reports what a section nuke removed.
type NukeResult struct {
	Deleted       int `json:"deleted"`
	BackupDeleted int `json:"backupDeleted"`
	CacheDeleted  int `json:"cacheDeleted"`
}
