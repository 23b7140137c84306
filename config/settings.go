package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server ServerSettings `json:"server"`
	Plex   PlexSettings   `json:"plex"`
	Backup BackupSettings `json:"backup"`
	Auth   AuthSettings   `json:"auth"`
	Log    LogConfig      `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// PlexSettings locates the Plex Media Server database this tool edits.
type PlexSettings struct {
	// DatabasePath is the full path to com.plexapp.plugins.library.db.
	DatabasePath string `json:"databasePath"`
	// PathMappings rewrites library file paths when this tool runs on a
	// different host than the Plex server (e.g. a container mount).
	PathMappings []PathMapping `json:"pathMappings,omitempty"`
}

// PathMapping rewrites a path prefix between the Plex host and this host.
type PathMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Apply rewrites a Plex-side path for the local filesystem.
func (p PathMapping) Apply(path string) (string, bool) {
	if strings.HasPrefix(path, p.From) {
		return p.To + strings.TrimPrefix(path, p.From), true
	}
	return path, false
}

// BackupSettings locates the marker action history database.
type BackupSettings struct {
	DatabasePath string `json:"databasePath"`
}

// AuthSettings holds the optional single-user password gate. An empty
// PasswordHash disables authentication.
type AuthSettings struct {
	Enabled         bool   `json:"enabled"`
	PasswordHash    string `json:"passwordHash,omitempty"`
	SessionTTLHours int    `json:"sessionTtlHours"`
}

// LogConfig controls file logging and rotation.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 3232},
		Plex: PlexSettings{
			DatabasePath: defaultPlexDatabasePath(),
		},
		Backup: BackupSettings{
			DatabasePath: "cache/markeredit.db",
		},
		Auth: AuthSettings{
			Enabled:         false,
			SessionTTLHours: 168,
		},
		Log: LogConfig{
			File:       "cache/logs/markeredit.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// defaultPlexDatabasePath guesses the standard install location for the
// current platform; the user overrides it in settings.json when it misses.
func defaultPlexDatabasePath() string {
	const suffix = "Plex Media Server/Plug-in Support/Databases/com.plexapp.plugins.library.db"
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local/share/plexmediaserver/Library/Application Support", suffix)
	}
	return filepath.Join("/var/lib/plexmediaserver/Library/Application Support", suffix)
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates
	// them.
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 3232
	}
	if strings.TrimSpace(s.Plex.DatabasePath) == "" {
		s.Plex.DatabasePath = defaultPlexDatabasePath()
	}
	if strings.TrimSpace(s.Backup.DatabasePath) == "" {
		s.Backup.DatabasePath = "cache/markeredit.db"
	}
	if s.Auth.SessionTTLHours == 0 {
		s.Auth.SessionTTLHours = 168
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/markeredit.log"
	}
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = "info"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
