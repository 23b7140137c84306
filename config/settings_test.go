package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Server.Port != 3232 {
		t.Fatalf("unexpected default port %d", settings.Server.Port)
	}
	if settings.Auth.SessionTTLHours != 168 {
		t.Fatalf("unexpected default ttl %d", settings.Auth.SessionTTLHours)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written to disk: %v", err)
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":9000}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Server.Port != 9000 {
		t.Fatalf("explicit port lost: %d", settings.Server.Port)
	}
	if settings.Server.Host != "0.0.0.0" {
		t.Fatalf("host not backfilled: %q", settings.Server.Host)
	}
	if settings.Backup.DatabasePath == "" || settings.Log.File == "" {
		t.Fatalf("paths not backfilled: %+v", settings)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	settings := DefaultSettings()
	settings.Server.Port = 4444
	settings.Plex.DatabasePath = "/srv/plex/library.db"
	settings.Plex.PathMappings = []PathMapping{{From: "/data", To: "/mnt/data"}}
	if err := m.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Port != 4444 || loaded.Plex.DatabasePath != "/srv/plex/library.db" {
		t.Fatalf("roundtrip mismatch: %+v", loaded)
	}
	if len(loaded.Plex.PathMappings) != 1 {
		t.Fatalf("path mappings lost: %+v", loaded.Plex)
	}
}

func TestPathMappingApply(t *testing.T) {
	mapping := PathMapping{From: "/data/tv", To: "/mnt/media/tv"}

	mapped, ok := mapping.Apply("/data/tv/Show/S01E01.mkv")
	if !ok || mapped != "/mnt/media/tv/Show/S01E01.mkv" {
		t.Fatalf("unexpected mapping %q ok=%v", mapped, ok)
	}

	same, ok := mapping.Apply("/other/file.mkv")
	if ok || same != "/other/file.mkv" {
		t.Fatalf("non-matching path must pass through, got %q ok=%v", same, ok)
	}
}
