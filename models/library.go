package models

// Plex metadata_type values for the item kinds this tool operates on.
const (
	MetadataTypeMovie   = 1
	MetadataTypeShow    = 2
	MetadataTypeSeason  = 3
	MetadataTypeEpisode = 4
)

// LibrarySection is one Plex library (a movie or TV section).
type LibrarySection struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Type  int    `json:"type"` // section_type: 1 movie, 2 show
	Count int    `json:"count,omitempty"`
}

// ShowData summarises a show for library navigation.
type ShowData struct {
	MetadataID   int64  `json:"metadataId"`
	Title        string `json:"title"`
	SeasonCount  int    `json:"seasonCount"`
	EpisodeCount int    `json:"episodeCount"`
}

// SeasonData summarises a season for library navigation.
type SeasonData struct {
	MetadataID   int64 `json:"metadataId"`
	Index        int   `json:"index"`
	EpisodeCount int   `json:"episodeCount"`
}

// EpisodeData carries one episode plus its markers through a bulk operation.
// Duration bounds valid marker placement.
type EpisodeData struct {
	MetadataID  int64  `json:"metadataId"`
	SeasonID    int64  `json:"seasonId,omitempty"`
	ShowID      int64  `json:"showId,omitempty"`
	SeasonIndex int    `json:"seasonIndex"`
	Index       int    `json:"index"`
	Duration    int64  `json:"duration"`
	Title       string `json:"title"`
	// File is the first media part's path, rewritten through any configured
	// path mappings.
	File    string   `json:"file,omitempty"`
	Markers []Marker `json:"markers,omitempty"`
}
