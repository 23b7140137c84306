package models

import "time"

// MarkerType identifies what a marker interval represents.
type MarkerType string

const (
	MarkerTypeIntro   MarkerType = "intro"
	MarkerTypeCredits MarkerType = "credits"
	MarkerTypeAd      MarkerType = "ad"

	// MarkerTypeAll is accepted by bulk operations as "no type filter".
	MarkerTypeAll MarkerType = "all"
)

// Valid reports whether t is a concrete marker type (not a filter wildcard).
func (t MarkerType) Valid() bool {
	switch t {
	case MarkerTypeIntro, MarkerTypeCredits, MarkerTypeAd:
		return true
	}
	return false
}

// Matches reports whether a marker of type m passes the filter t.
func (t MarkerType) Matches(m MarkerType) bool {
	return t == MarkerTypeAll || t == m
}

// Marker is a single intro/credits/ad interval attached to an episode or movie.
// Start/End are milliseconds from the beginning of the item. Index is the
// 0-based position of the marker among its parent's markers ordered by start.
type Marker struct {
	ID            int64      `json:"id"`
	ParentID      int64      `json:"parentId"`
	SeasonID      int64      `json:"seasonId,omitempty"`
	ShowID        int64      `json:"showId,omitempty"`
	SectionID     int64      `json:"sectionId"`
	Start         int64      `json:"start"`
	End           int64      `json:"end"`
	Index         int        `json:"index"`
	Type          MarkerType `json:"markerType"`
	IsFinal       bool       `json:"isFinal"`
	CreatedByUser bool       `json:"createdByUser"`
	CreatedAt     time.Time  `json:"createDate"`
	ModifiedAt    time.Time  `json:"modifiedDate"`
}

// Overlaps reports whether the marker intersects the half-open interval
// [start,end).
func (m Marker) Overlaps(start, end int64) bool {
	return start < m.End && m.Start < end
}

// MarkerActionOp describes what kind of mutation a MarkerAction recorded.
type MarkerActionOp string

const (
	ActionAdd     MarkerActionOp = "add"
	ActionEdit    MarkerActionOp = "edit"
	ActionDelete  MarkerActionOp = "delete"
	ActionRestore MarkerActionOp = "restore"
)

// MarkerAction is a historical snapshot of a marker mutation performed by this
// tool. Actions are what purge detection compares against the live Plex
// database: a marker we added or edited that has since vanished was purged by
// the server's own scan.
type MarkerAction struct {
	ID         int64          `json:"id"`
	Op         MarkerActionOp `json:"op"`
	MarkerID   int64          `json:"markerId"`
	EpisodeID  int64          `json:"episodeId"`
	SeasonID   int64          `json:"seasonId"`
	ShowID     int64          `json:"showId"`
	SectionID  int64          `json:"sectionId"`
	Start      int64          `json:"start"`
	End        int64          `json:"end"`
	Type       MarkerType     `json:"markerType"`
	IsFinal    bool           `json:"isFinal"`
	RecordedAt time.Time      `json:"recordedAt"`
	Restored   bool           `json:"restored"`
	Ignored    bool           `json:"ignored"`
}

// ChapterData is an embedded chapter read from the media file's metadata, used
// by the UI as a timestamp reference when placing markers.
type ChapterData struct {
	Name  string `json:"name"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}
