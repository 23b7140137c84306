// Package plexdb provides direct read/write access to the Plex Media Server
// SQLite database. Markers live in the taggings table; the show hierarchy in
// metadata_items. Plex itself keeps the database open, so every write is
// retried through busy/locked errors.
package plexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"markeredit/config"

	"github.com/avast/retry-go/v4"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a marker or metadata item id does not
	// exist.
	ErrNotFound = errors.New("item not found")
	// ErrWrongMetadataType is returned when an operation targets an item
	// kind it cannot work on (e.g. bulk add rooted at a collection).
	ErrWrongMetadataType = errors.New("unexpected metadata item type")
)

// markerTagType is the tag_type value Plex uses for intro/credits/ad markers.
const markerTagType = 12

// Repo wraps the Plex database connection.
type Repo struct {
	db          *sql.DB
	markerTagID int64
	mappings    []config.PathMapping
}

// SetPathMappings installs the prefix rewrites applied to media file paths
// returned by episode queries, for installs where this tool sees the library
// under a different mount than the Plex server.
func (r *Repo) SetPathMappings(mappings []config.PathMapping) {
	r.mappings = mappings
}

func (r *Repo) mapPath(path string) string {
	for _, m := range r.mappings {
		if mapped, ok := m.Apply(path); ok {
			return mapped
		}
	}
	return path
}

// Open opens the Plex library database read-write. A generous busy timeout is
// set because the media server holds long-lived write locks during scans.
func Open(dbPath string) (*Repo, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	absPath = strings.ReplaceAll(absPath, "\\", "/")

	uri := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", absPath)
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open plex database: %w", err)
	}
	// The Plex DB does not tolerate concurrent writers well; serialize on
	// a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping plex database: %w", err)
	}

	r := &Repo{db: db}
	if err := r.loadMarkerTag(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the database connection.
func (r *Repo) Close() error {
	return r.db.Close()
}

// loadMarkerTag finds (or creates) the tags row markers reference. A fresh
// library that has never had an intro detected will not have one yet.
func (r *Repo) loadMarkerTag() error {
	err := r.db.QueryRow(`SELECT id FROM tags WHERE tag_type = ? LIMIT 1`, markerTagType).Scan(&r.markerTagID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query marker tag: %w", err)
	}

	res, err := r.db.Exec(
		`INSERT INTO tags (tag, tag_type, created_at, updated_at) VALUES ('', ?, ?, ?)`,
		markerTagType, time.Now().Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("create marker tag: %w", err)
	}
	r.markerTagID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create marker tag: %w", err)
	}
	return nil
}

// retryBusy reruns fn while the database reports busy/locked, which happens
// whenever PMS is mid-scan.
func retryBusy(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isBusy),
	)
}

func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// withTx runs fn inside a transaction, retrying the whole transaction on
// busy/locked errors.
func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryBusy(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
