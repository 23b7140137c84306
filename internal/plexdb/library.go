package plexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"markeredit/models"
)

// Sections returns every movie and show library in the database.
func (r *Repo) Sections(ctx context.Context) ([]models.LibrarySection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, section_type
		FROM library_sections
		WHERE section_type IN (1, 2)
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query library sections: %w", err)
	}
	defer rows.Close()

	var sections []models.LibrarySection
	for rows.Next() {
		var s models.LibrarySection
		if err := rows.Scan(&s.ID, &s.Name, &s.Type); err != nil {
			return nil, fmt.Errorf("scan library section: %w", err)
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// ItemType returns the metadata_type of one item.
func (r *Repo) ItemType(ctx context.Context, id int64) (int, error) {
	var t int
	err := r.db.QueryRowContext(ctx,
		`SELECT metadata_type FROM metadata_items WHERE id = ?`, id).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query metadata type: %w", err)
	}
	return t, nil
}

// SectionForItem returns the library section an item belongs to.
func (r *Repo) SectionForItem(ctx context.Context, id int64) (int64, error) {
	var sectionID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT library_section_id FROM metadata_items WHERE id = ?`, id).Scan(&sectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query section for item: %w", err)
	}
	return sectionID, nil
}

// Shows lists the shows of a TV section with their season/episode counts.
func (r *Repo) Shows(ctx context.Context, sectionID int64) ([]models.ShowData, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT show.id, show.title,
		       COUNT(DISTINCT season.id),
		       COUNT(DISTINCT ep.id)
		FROM metadata_items show
		LEFT JOIN metadata_items season ON season.parent_id = show.id
		LEFT JOIN metadata_items ep ON ep.parent_id = season.id
		WHERE show.library_section_id = ? AND show.metadata_type = ?
		GROUP BY show.id
		ORDER BY show.title_sort`, sectionID, models.MetadataTypeShow)
	if err != nil {
		return nil, fmt.Errorf("query shows: %w", err)
	}
	defer rows.Close()

	var shows []models.ShowData
	for rows.Next() {
		var s models.ShowData
		if err := rows.Scan(&s.MetadataID, &s.Title, &s.SeasonCount, &s.EpisodeCount); err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

// Seasons lists the seasons of one show.
func (r *Repo) Seasons(ctx context.Context, showID int64) ([]models.SeasonData, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT season.id, COALESCE(season."index", 0), COUNT(ep.id)
		FROM metadata_items season
		LEFT JOIN metadata_items ep ON ep.parent_id = season.id
		WHERE season.parent_id = ? AND season.metadata_type = ?
		GROUP BY season.id
		ORDER BY season."index"`, showID, models.MetadataTypeSeason)
	if err != nil {
		return nil, fmt.Errorf("query seasons: %w", err)
	}
	defer rows.Close()

	var seasons []models.SeasonData
	for rows.Next() {
		var s models.SeasonData
		if err := rows.Scan(&s.MetadataID, &s.Index, &s.EpisodeCount); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

const episodeSelect = `
	SELECT ep.id, COALESCE(ep.parent_id, 0), COALESCE(season.parent_id, 0),
	       COALESCE(season."index", 0), COALESCE(ep."index", 0),
	       COALESCE(ep.duration, 0), ep.title,
	       COALESCE((SELECT mp.file FROM media_items mi
	                 JOIN media_parts mp ON mp.media_item_id = mi.id
	                 WHERE mi.metadata_item_id = ep.id LIMIT 1), '')
	FROM metadata_items ep
	LEFT JOIN metadata_items season ON season.id = ep.parent_id`

func (r *Repo) scanEpisodes(rows *sql.Rows) ([]models.EpisodeData, error) {
	var episodes []models.EpisodeData
	for rows.Next() {
		var e models.EpisodeData
		if err := rows.Scan(&e.MetadataID, &e.SeasonID, &e.ShowID,
			&e.SeasonIndex, &e.Index, &e.Duration, &e.Title, &e.File); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if e.File != "" {
			e.File = r.mapPath(e.File)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// EpisodesUnder resolves a root metadata id to the leaf items markers attach
// to: the episode or movie itself, a season's episodes, or every episode of a
// show. Markers are not populated.
func (r *Repo) EpisodesUnder(ctx context.Context, rootID int64) ([]models.EpisodeData, error) {
	itemType, err := r.ItemType(ctx, rootID)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	switch itemType {
	case models.MetadataTypeEpisode, models.MetadataTypeMovie:
		rows, err = r.db.QueryContext(ctx, episodeSelect+` WHERE ep.id = ?`, rootID)
	case models.MetadataTypeSeason:
		rows, err = r.db.QueryContext(ctx,
			episodeSelect+` WHERE ep.parent_id = ? AND ep.metadata_type = ? ORDER BY ep."index"`,
			rootID, models.MetadataTypeEpisode)
	case models.MetadataTypeShow:
		rows, err = r.db.QueryContext(ctx, episodeSelect+`
			WHERE season.parent_id = ? AND ep.metadata_type = ?
			ORDER BY season."index", ep."index"`,
			rootID, models.MetadataTypeEpisode)
	default:
		return nil, fmt.Errorf("%w: metadata_type %d", ErrWrongMetadataType, itemType)
	}
	if err != nil {
		return nil, fmt.Errorf("query episodes under %d: %w", rootID, err)
	}
	defer rows.Close()
	return r.scanEpisodes(rows)
}

// EpisodesInSection returns every markable leaf item of a library section.
func (r *Repo) EpisodesInSection(ctx context.Context, sectionID int64) ([]models.EpisodeData, error) {
	rows, err := r.db.QueryContext(ctx, episodeSelect+`
		WHERE ep.library_section_id = ? AND ep.metadata_type IN (?, ?)
		ORDER BY ep.id`,
		sectionID, models.MetadataTypeEpisode, models.MetadataTypeMovie)
	if err != nil {
		return nil, fmt.Errorf("query section episodes: %w", err)
	}
	defer rows.Close()
	return r.scanEpisodes(rows)
}
