// Package config holds the JSON bootstrap configuration: the defaults and
// environment overrides read once at startup. Runtime-mutable settings
// (anything an operator can change without a restart) live in
// storage.ConfigurationRepository instead, keyed by the same dotted names.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// IndexerConfig describes one configured Prowlarr indexer.
type IndexerConfig struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Priority           int      `json:"priority"`
	SeedingTimeMinutes int      `json:"seedingTimeMinutes"` // 0 = unlimited, never clean
	RSSEnabled         bool     `json:"rssEnabled"`
	Categories         []string `json:"categories"`
}

// LibraryScanConfig is shared shape for plex/audiobookshelf scan-trigger settings.
type LibraryScanConfig struct {
	TriggerScanAfterImport bool   `json:"triggerScanAfterImport"`
	LibraryID              string `json:"libraryId"`
}

// EbookSidecarConfig configures the e-book scraper sidecar.
type EbookSidecarConfig struct {
	BaseURL         string `json:"baseUrl"`
	PreferredFormat string `json:"preferredFormat"`
	FlaresolverrURL string `json:"flaresolverrUrl"`
}

// PathMapping is the remote-to-local path translation for one download client.
type PathMapping struct {
	Enabled    bool   `json:"enabled"`
	RemotePath string `json:"remotePath"`
	LocalPath  string `json:"localPath"`
}

// Config is the full bootstrap configuration, loaded once at startup from a
// JSON file and overridable by environment variables.
type Config struct {
	DownloadDir           string                 `json:"downloadDir"`
	MediaDir              string                 `json:"mediaDir"`
	AudiobookPathTemplate string                 `json:"audiobookPathTemplate"`
	MaxImportRetries      int                    `json:"maxImportRetries"`
	Plex                  LibraryScanConfig      `json:"plex"`
	Audiobookshelf        LibraryScanConfig      `json:"audiobookshelf"`
	ProwlarrIndexers      []IndexerConfig        `json:"prowlarrIndexers"`
	EbookSidecar          EbookSidecarConfig     `json:"ebookSidecar"`
	PathMappings          map[string]PathMapping `json:"pathMappings"` // keyed by downloadClient name

	mu       sync.RWMutex
	filePath string
}

// Default returns the built-in defaults used when no settings file exists yet.
func Default() *Config {
	return &Config{
		DownloadDir:           "",
		MediaDir:              "",
		AudiobookPathTemplate: "{author}/{title} {asin}",
		MaxImportRetries:      3,
		Plex:                  LibraryScanConfig{TriggerScanAfterImport: false},
		Audiobookshelf:        LibraryScanConfig{TriggerScanAfterImport: false},
		ProwlarrIndexers:      nil,
		EbookSidecar:          EbookSidecarConfig{PreferredFormat: "epub"},
		PathMappings:          map[string]PathMapping{},
	}
}

// Load reads settings.json from configDir, falling back to defaults when
// the file is missing or corrupt, then applies environment overrides.
func Load(configDir string) (*Config, error) {
	filePath := filepath.Join(configDir, "settings.json")
	cfg := Default()
	cfg.filePath = filePath

	data, err := os.ReadFile(filePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			cfg = Default()
		}
		cfg.filePath = filePath // restore after unmarshal overwrote the zero value
	}

	if v := os.Getenv("KINGOACQUIRE_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("KINGOACQUIRE_MEDIA_DIR"); v != "" {
		cfg.MediaDir = v
	}
	if v := os.Getenv("KINGOACQUIRE_EBOOK_SIDECAR_BASE_URL"); v != "" {
		cfg.EbookSidecar.BaseURL = v
	}

	return cfg, nil
}

// Save writes the current config to disk as indented JSON.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// Update executes fn with the write lock held.
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Get returns a snapshot copy of the config.
func (c *Config) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		DownloadDir:           c.DownloadDir,
		MediaDir:              c.MediaDir,
		AudiobookPathTemplate: c.AudiobookPathTemplate,
		MaxImportRetries:      c.MaxImportRetries,
		Plex:                  c.Plex,
		Audiobookshelf:        c.Audiobookshelf,
		ProwlarrIndexers:      c.ProwlarrIndexers,
		EbookSidecar:          c.EbookSidecar,
		PathMappings:          c.PathMappings,
	}
}

// PathMappingFor returns the configured PathMapping for a download client,
// or the zero value (disabled) when none is configured.
func (c *Config) PathMappingFor(downloadClient string) PathMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PathMappings[downloadClient]
}
