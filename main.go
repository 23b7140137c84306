package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"markeredit/api"
	"markeredit/config"
	"markeredit/handlers"
	"markeredit/internal/backup"
	"markeredit/internal/plexdb"
	"markeredit/services/markers"
	"markeredit/services/purge"
	"markeredit/services/sessions"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	configFlag := flag.String("config", "", "path to settings.json")
	flag.Parse()

	fmt.Println("🚀 markeredit Backend Starting...")

	// Determine config path (flag, env or default)
	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("MARKEREDIT_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// First-run password generation when auth is enabled but unconfigured
	if settings.Auth.Enabled && settings.Auth.PasswordHash == "" {
		plain, hash, err := sessions.GeneratePassword()
		if err != nil {
			log.Fatalf("failed to generate password: %v", err)
		}
		settings.Auth.PasswordHash = hash
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist generated password: %v", err)
		}
		fmt.Println("═══════════════════════════════════════════")
		fmt.Printf("🔑 Generated login password: %s\n", plain)
		fmt.Println("   Store it now; only the hash is kept.")
		fmt.Println("═══════════════════════════════════════════")
	}

	// Open the Plex database
	repo, err := plexdb.Open(settings.Plex.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open Plex database at %s: %v", settings.Plex.DatabasePath, err)
	}
	repo.SetPathMappings(settings.Plex.PathMappings)
	fmt.Printf("✅ Plex database: %s\n", settings.Plex.DatabasePath)

	// Open the backup database (marker action history)
	store, err := backup.Open(settings.Backup.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open backup database at %s: %v", settings.Backup.DatabasePath, err)
	}
	fmt.Printf("✅ Backup database: %s\n", settings.Backup.DatabasePath)

	// Wire services
	markerService := markers.NewService(repo, store)
	purgeService := purge.NewService(repo, store, markerService)

	authHash := ""
	if settings.Auth.Enabled {
		authHash = settings.Auth.PasswordHash
	}
	sessionService := sessions.NewService(authHash,
		time.Duration(settings.Auth.SessionTTLHours)*time.Hour)
	if sessionService.Enabled() {
		fmt.Println("🔒 Authentication enabled")
	}

	// Wire handlers and routes
	markersHandler := handlers.NewMarkersHandler(markerService)
	bulkHandler := handlers.NewBulkHandler(markerService, purgeService)
	purgeHandler := handlers.NewPurgeHandler(purgeService)
	libraryHandler := handlers.NewLibraryHandler(repo)
	authHandler := handlers.NewAuthHandler(sessionService)
	settingsHandler := handlers.NewSettingsHandler(cfgManager)

	r := mux.NewRouter()
	api.Register(r, markersHandler, bulkHandler, purgeHandler,
		libraryHandler, authHandler, settingsHandler, sessionService)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("Backup database close error: %v", err)
	}
	if err := repo.Close(); err != nil {
		log.Printf("Plex database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
