// Package plexdbtest builds throwaway Plex-shaped SQLite databases for tests:
// the handful of tables the editor touches, plus seed helpers for a small
// show hierarchy.
package plexdbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE library_sections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	section_type INTEGER NOT NULL
);
CREATE TABLE metadata_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_section_id INTEGER NOT NULL,
	parent_id INTEGER,
	metadata_type INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	title_sort TEXT NOT NULL DEFAULT '',
	"index" INTEGER,
	duration INTEGER
);
CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tag TEXT NOT NULL DEFAULT '',
	tag_type INTEGER NOT NULL,
	created_at INTEGER,
	updated_at INTEGER
);
CREATE TABLE taggings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metadata_item_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	"index" INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL DEFAULT '',
	time_offset INTEGER,
	end_time_offset INTEGER,
	thumb_url TEXT NOT NULL DEFAULT '',
	created_at INTEGER,
	updated_at INTEGER,
	extra_data TEXT
);
CREATE TABLE media_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metadata_item_id INTEGER NOT NULL
);
CREATE TABLE media_parts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_item_id INTEGER NOT NULL,
	file TEXT NOT NULL DEFAULT '',
	extra_data TEXT
);
`

// DB wraps a seeded database file plus direct access for assertions.
type DB struct {
	Path string
	Conn *sql.DB
}

// New creates an empty Plex-shaped database in a temp dir.
func New(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "com.plexapp.plugins.library.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return &DB{Path: path, Conn: conn}
}

// AddSection inserts a library section and returns its id.
func (d *DB) AddSection(t *testing.T, name string, sectionType int) int64 {
	t.Helper()
	return d.insert(t,
		`INSERT INTO library_sections (name, section_type) VALUES (?, ?)`,
		name, sectionType)
}

// AddItem inserts a metadata item and returns its id. Pass parent 0 for
// top-level items.
func (d *DB) AddItem(t *testing.T, sectionID, parentID int64, metadataType int, title string, index int, duration int64) int64 {
	t.Helper()
	var parent any
	if parentID != 0 {
		parent = parentID
	}
	var dur any
	if duration != 0 {
		dur = duration
	}
	return d.insert(t, `
		INSERT INTO metadata_items
			(library_section_id, parent_id, metadata_type, title, title_sort, "index", duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sectionID, parent, metadataType, title, title, index, dur)
}

// AddMediaPart attaches a media item + part to an episode and returns the
// part id.
func (d *DB) AddMediaPart(t *testing.T, metadataItemID int64, file, extraData string) int64 {
	t.Helper()
	mediaID := d.insert(t,
		`INSERT INTO media_items (metadata_item_id) VALUES (?)`, metadataItemID)
	return d.insert(t,
		`INSERT INTO media_parts (media_item_id, file, extra_data) VALUES (?, ?, ?)`,
		mediaID, file, extraData)
}

func (d *DB) insert(t *testing.T, query string, args ...any) int64 {
	t.Helper()
	res, err := d.Conn.Exec(query, args...)
	if err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed insert id: %v", err)
	}
	return id
}

// Fixture is a ready-made two-episode show for marker tests.
type Fixture struct {
	DB        *DB
	SectionID int64
	ShowID    int64
	SeasonID  int64
	Episode1  int64
	Episode2  int64
}

// NewFixture seeds one TV section with a show, one season and two 600s
// episodes.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	db := New(t)
	section := db.AddSection(t, "TV Shows", 2)
	show := db.AddItem(t, section, 0, 2, "Example Show", 1, 0)
	season := db.AddItem(t, section, show, 3, "Season 1", 1, 0)
	ep1 := db.AddItem(t, section, season, 4, "Pilot", 1, 600000)
	ep2 := db.AddItem(t, section, season, 4, "Episode 2", 2, 600000)

	return &Fixture{
		DB:        db,
		SectionID: section,
		ShowID:    show,
		SeasonID:  season,
		Episode1:  ep1,
		Episode2:  ep2,
	}
}
