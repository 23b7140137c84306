package plexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"markeredit/models"
)

// Plex stores ad markers with the text "commercial"; the API surface calls
// them "ad".
func dbMarkerType(t models.MarkerType) string {
	if t == models.MarkerTypeAd {
		return "commercial"
	}
	return string(t)
}

func apiMarkerType(text string) models.MarkerType {
	if text == "commercial" {
		return models.MarkerTypeAd
	}
	return models.MarkerType(text)
}

// Marker metadata Plex keeps url-encoded in taggings.extra_data.
const (
	extraVersionKey = "pv:version"
	extraFinalKey   = "pv:final"
	extraUserKey    = "pv:userCreated"
)

func encodeExtraData(isFinal, createdByUser bool) string {
	v := url.Values{}
	v.Set(extraVersionKey, "5")
	if isFinal {
		v.Set(extraFinalKey, "1")
	}
	if createdByUser {
		v.Set(extraUserKey, "1")
	}
	return v.Encode()
}

func decodeExtraData(extra string) (isFinal, createdByUser bool) {
	v, err := url.ParseQuery(extra)
	if err != nil {
		return false, false
	}
	return v.Get(extraFinalKey) == "1", v.Get(extraUserKey) == "1"
}

const markerSelect = `
	SELECT t.id, t.metadata_item_id, COALESCE(ep.parent_id, 0),
	       COALESCE(season.parent_id, 0), ep.library_section_id,
	       t.time_offset, t.end_time_offset, t."index", t.text,
	       COALESCE(t.extra_data, ''), t.created_at, COALESCE(t.updated_at, t.created_at)
	FROM taggings t
	JOIN metadata_items ep ON ep.id = t.metadata_item_id
	LEFT JOIN metadata_items season ON season.id = ep.parent_id`

func scanMarkers(rows *sql.Rows) ([]models.Marker, error) {
	var markers []models.Marker
	for rows.Next() {
		var m models.Marker
		var text, extra string
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.ParentID, &m.SeasonID, &m.ShowID, &m.SectionID,
			&m.Start, &m.End, &m.Index, &text, &extra, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		m.Type = apiMarkerType(text)
		m.IsFinal, m.CreatedByUser = decodeExtraData(extra)
		m.CreatedAt = time.Unix(created, 0).UTC()
		m.ModifiedAt = time.Unix(updated, 0).UTC()
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// MarkerByID fetches one marker.
func (r *Repo) MarkerByID(ctx context.Context, id int64) (models.Marker, error) {
	rows, err := r.db.QueryContext(ctx, markerSelect+` WHERE t.id = ? AND t.tag_id = ?`, id, r.markerTagID)
	if err != nil {
		return models.Marker{}, fmt.Errorf("query marker: %w", err)
	}
	defer rows.Close()

	markers, err := scanMarkers(rows)
	if err != nil {
		return models.Marker{}, err
	}
	if len(markers) == 0 {
		return models.Marker{}, ErrNotFound
	}
	return markers[0], nil
}

// MarkersForParents returns all markers for the given leaf items, keyed by
// parent id and ordered by index.
func (r *Repo) MarkersForParents(ctx context.Context, parentIDs []int64) (map[int64][]models.Marker, error) {
	result := make(map[int64][]models.Marker, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]any, 0, len(parentIDs)+1)
	args = append(args, r.markerTagID)
	for _, id := range parentIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		markerSelect+` WHERE t.tag_id = ? AND t.metadata_item_id IN (`+placeholders+`)
		ORDER BY t.metadata_item_id, t."index"`, args...)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	markers, err := scanMarkers(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range markers {
		result[m.ParentID] = append(result[m.ParentID], m)
	}
	return result, nil
}

// ExistingMarkerIDs reports which of the given marker ids are still present.
// Purge detection diffs this against the backup database.
func (r *Repo) ExistingMarkerIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	present := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return present, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, r.markerTagID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM taggings WHERE tag_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query marker ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan marker id: %w", err)
		}
		present[id] = true
	}
	return present, rows.Err()
}

// InsertMarker adds a marker row and returns it with its new id and
// timestamps filled in. The caller is responsible for reindexing the parent
// afterwards.
func (r *Repo) InsertMarker(ctx context.Context, m models.Marker) (models.Marker, error) {
	now := time.Now().UTC()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO taggings
				(metadata_item_id, tag_id, "index", text, time_offset, end_time_offset, thumb_url, created_at, extra_data)
			VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
			m.ParentID, r.markerTagID, m.Index, dbMarkerType(m.Type),
			m.Start, m.End, now.Unix(), encodeExtraData(m.IsFinal, m.CreatedByUser))
		if err != nil {
			return fmt.Errorf("insert marker: %w", err)
		}
		m.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return models.Marker{}, err
	}
	m.CreatedAt = now
	m.ModifiedAt = now
	return m, nil
}

// UpdateMarker rewrites a marker's bounds, type and flags.
func (r *Repo) UpdateMarker(ctx context.Context, m models.Marker) (models.Marker, error) {
	now := time.Now().UTC()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE taggings
			SET time_offset = ?, end_time_offset = ?, text = ?, extra_data = ?, updated_at = ?
			WHERE id = ? AND tag_id = ?`,
			m.Start, m.End, dbMarkerType(m.Type),
			encodeExtraData(m.IsFinal, m.CreatedByUser), now.Unix(), m.ID, r.markerTagID)
		if err != nil {
			return fmt.Errorf("update marker: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return models.Marker{}, err
	}
	m.ModifiedAt = now
	return m, nil
}

// DeleteMarker removes one marker row.
func (r *Repo) DeleteMarker(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM taggings WHERE id = ? AND tag_id = ?`, id, r.markerTagID)
		if err != nil {
			return fmt.Errorf("delete marker: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ApplyIndexes writes the index of each given marker back to the database,
// in one transaction per parent.
func (r *Repo) ApplyIndexes(ctx context.Context, markers []models.Marker) error {
	if len(markers) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range markers {
			if _, err := tx.ExecContext(ctx,
				`UPDATE taggings SET "index" = ? WHERE id = ? AND tag_id = ?`,
				m.Index, m.ID, r.markerTagID); err != nil {
				return fmt.Errorf("update marker index: %w", err)
			}
		}
		return nil
	})
}

// DeleteMarkersInSection removes every marker in a section, optionally
// restricted by type, and returns how many rows were deleted.
func (r *Repo) DeleteMarkersInSection(ctx context.Context, sectionID int64, typeFilter models.MarkerType) (int, error) {
	var deleted int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			DELETE FROM taggings
			WHERE tag_id = ? AND metadata_item_id IN
				(SELECT id FROM metadata_items WHERE library_section_id = ?)`
		args := []any{r.markerTagID, sectionID}
		if typeFilter != models.MarkerTypeAll {
			query += ` AND text = ?`
			args = append(args, dbMarkerType(typeFilter))
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete section markers: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// Chapters returns the embedded chapters of an episode's first media part.
// Plex keeps them url-encoded in media_parts.extra_data.
func (r *Repo) Chapters(ctx context.Context, episodeID int64) ([]models.ChapterData, error) {
	var extra string
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(mp.extra_data, '')
		FROM media_parts mp
		JOIN media_items mi ON mi.id = mp.media_item_id
		WHERE mi.metadata_item_id = ?
		ORDER BY mp.id LIMIT 1`, episodeID).Scan(&extra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query media part: %w", err)
	}
	return parseChapters(extra), nil
}

// parseChapters extracts "pv:chapters" entries of the form
// name|startMs|endMs;name|startMs|endMs;...
func parseChapters(extra string) []models.ChapterData {
	v, err := url.ParseQuery(extra)
	if err != nil {
		return nil
	}
	raw := v.Get("pv:chapters")
	if raw == "" {
		return nil
	}

	var chapters []models.ChapterData
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			continue
		}
		var c models.ChapterData
		c.Name = parts[0]
		if _, err := fmt.Sscanf(parts[1], "%d", &c.Start); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(parts[2], "%d", &c.End); err != nil {
			continue
		}
		chapters = append(chapters, c)
	}
	return chapters
}
