// Package backup records every marker mutation this tool performs in its own
// SQLite database. The history serves two purposes: an audit trail, and the
// reference set purge detection diffs against the live Plex database to find
// markers the server's own scans silently removed.
package backup

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "github.com/mattn/go-sqlite3"

	"markeredit/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrActionNotFound is returned when no recorded action matches a marker id.
var ErrActionNotFound = errors.New("no recorded action for marker")

// Store is the marker action history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the backup database and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open backup database: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate backup database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the backup database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one action to the history and returns it with its id and
// timestamp filled in.
func (s *Store) Record(ctx context.Context, a models.MarkerAction) (models.MarkerAction, error) {
	a.RecordedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO marker_actions
			(op, marker_id, episode_id, season_id, show_id, section_id,
			 start_ms, end_ms, marker_type, is_final, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Op, a.MarkerID, a.EpisodeID, a.SeasonID, a.ShowID, a.SectionID,
		a.Start, a.End, a.Type, boolInt(a.IsFinal), a.RecordedAt.Unix())
	if err != nil {
		return models.MarkerAction{}, fmt.Errorf("record marker action: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return models.MarkerAction{}, err
	}
	return a, nil
}

// RecordMarker is a convenience wrapper building the action from a marker.
func (s *Store) RecordMarker(ctx context.Context, op models.MarkerActionOp, m models.Marker) error {
	_, err := s.Record(ctx, models.MarkerAction{
		Op:        op,
		MarkerID:  m.ID,
		EpisodeID: m.ParentID,
		SeasonID:  m.SeasonID,
		ShowID:    m.ShowID,
		SectionID: m.SectionID,
		Start:     m.Start,
		End:       m.End,
		Type:      m.Type,
		IsFinal:   m.IsFinal,
	})
	return err
}

// latestActions selects the most recent action per marker id matching the
// given WHERE clause against the latest row.
const latestActions = `
	SELECT a.id, a.op, a.marker_id, a.episode_id, a.season_id, a.show_id,
	       a.section_id, a.start_ms, a.end_ms, a.marker_type, a.is_final,
	       a.recorded_at, a.restored, a.ignored
	FROM marker_actions a
	WHERE a.id = (SELECT MAX(b.id) FROM marker_actions b WHERE b.marker_id = a.marker_id)`

func (s *Store) queryActions(ctx context.Context, query string, args ...any) ([]models.MarkerAction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query marker actions: %w", err)
	}
	defer rows.Close()

	var actions []models.MarkerAction
	for rows.Next() {
		var a models.MarkerAction
		var isFinal, restored, ignored int
		var recorded int64
		if err := rows.Scan(&a.ID, &a.Op, &a.MarkerID, &a.EpisodeID, &a.SeasonID,
			&a.ShowID, &a.SectionID, &a.Start, &a.End, &a.Type, &isFinal,
			&recorded, &restored, &ignored); err != nil {
			return nil, fmt.Errorf("scan marker action: %w", err)
		}
		a.IsFinal = isFinal != 0
		a.Restored = restored != 0
		a.Ignored = ignored != 0
		a.RecordedAt = time.Unix(recorded, 0).UTC()
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Candidates returns the latest action per marker in a section that could be
// a purge: markers we added or edited that we did not delete, restore or
// ignore ourselves.
func (s *Store) Candidates(ctx context.Context, sectionID int64) ([]models.MarkerAction, error) {
	return s.queryActions(ctx, latestActions+`
		AND a.section_id = ? AND a.op != ? AND a.restored = 0 AND a.ignored = 0`,
		sectionID, models.ActionDelete)
}

// CandidatesForShow is Candidates scoped to one show.
func (s *Store) CandidatesForShow(ctx context.Context, showID int64) ([]models.MarkerAction, error) {
	return s.queryActions(ctx, latestActions+`
		AND a.show_id = ? AND a.op != ? AND a.restored = 0 AND a.ignored = 0`,
		showID, models.ActionDelete)
}

// LatestForMarker returns the most recent action recorded for a marker id.
func (s *Store) LatestForMarker(ctx context.Context, markerID int64) (models.MarkerAction, error) {
	actions, err := s.queryActions(ctx, latestActions+` AND a.marker_id = ?`, markerID)
	if err != nil {
		return models.MarkerAction{}, err
	}
	if len(actions) == 0 {
		return models.MarkerAction{}, ErrActionNotFound
	}
	return actions[0], nil
}

// MarkIgnored flags every action of the given markers as permanently ignored
// and returns how many markers were affected.
func (s *Store) MarkIgnored(ctx context.Context, markerIDs []int64) (int, error) {
	return s.flagMarkers(ctx, "ignored", markerIDs)
}

// MarkRestored flags the purged marker's history as restored and records a
// restore action carrying the marker's new id in the Plex database.
func (s *Store) MarkRestored(ctx context.Context, oldMarkerID int64, restored models.Marker) error {
	if _, err := s.flagMarkers(ctx, "restored", []int64{oldMarkerID}); err != nil {
		return err
	}
	return s.RecordMarker(ctx, models.ActionRestore, restored)
}

func (s *Store) flagMarkers(ctx context.Context, column string, markerIDs []int64) (int, error) {
	if len(markerIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(markerIDs)), ",")
	args := make([]any, len(markerIDs))
	for i, id := range markerIDs {
		args[i] = id
	}

	// column is one of two compile-time constants, never user input.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE marker_actions SET `+column+` = 1 WHERE marker_id IN (`+placeholders+`)`,
		args...); err != nil {
		return 0, fmt.Errorf("flag marker actions: %w", err)
	}

	var affected int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT marker_id) FROM marker_actions WHERE `+column+` = 1 AND marker_id IN (`+placeholders+`)`,
		args...).Scan(&affected)
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DeleteSection drops the entire history for a section (nuke) and returns the
// number of distinct markers whose history was removed.
func (s *Store) DeleteSection(ctx context.Context, sectionID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT marker_id) FROM marker_actions WHERE section_id = ?`,
		sectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count section actions: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM marker_actions WHERE section_id = ?`, sectionID); err != nil {
		return 0, fmt.Errorf("delete section actions: %w", err)
	}
	return count, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
