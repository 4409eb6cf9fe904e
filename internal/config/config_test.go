package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.AudiobookPathTemplate != "{author}/{title} {asin}" {
		t.Errorf("AudiobookPathTemplate = %q, want default template", cfg.AudiobookPathTemplate)
	}
	if cfg.MaxImportRetries != 3 {
		t.Errorf("MaxImportRetries = %d, want 3", cfg.MaxImportRetries)
	}
	if cfg.Plex.TriggerScanAfterImport {
		t.Error("Plex.TriggerScanAfterImport should default to false")
	}
	if cfg.EbookSidecar.PreferredFormat != "epub" {
		t.Errorf("EbookSidecar.PreferredFormat = %q, want %q", cfg.EbookSidecar.PreferredFormat, "epub")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for missing file: %v", err)
	}
	if cfg.MaxImportRetries != 3 {
		t.Errorf("should return defaults, got MaxImportRetries = %d", cfg.MaxImportRetries)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	data := `{
		"downloadDir": "/data/downloads",
		"mediaDir": "/data/media",
		"maxImportRetries": 5,
		"plex": {"triggerScanAfterImport": true, "libraryId": "7"},
		"prowlarrIndexers": [
			{"id": "1", "name": "indexer-a", "priority": 10, "seedingTimeMinutes": 0, "rssEnabled": true}
		]
	}`
	os.WriteFile(filePath, []byte(data), 0644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DownloadDir != "/data/downloads" {
		t.Errorf("DownloadDir = %q, want %q", cfg.DownloadDir, "/data/downloads")
	}
	if cfg.MaxImportRetries != 5 {
		t.Errorf("MaxImportRetries = %d, want 5", cfg.MaxImportRetries)
	}
	if !cfg.Plex.TriggerScanAfterImport {
		t.Error("Plex.TriggerScanAfterImport should be true")
	}
	if len(cfg.ProwlarrIndexers) != 1 || cfg.ProwlarrIndexers[0].Name != "indexer-a" {
		t.Errorf("ProwlarrIndexers = %+v, want one indexer-a entry", cfg.ProwlarrIndexers)
	}
}

func TestLoad_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	os.WriteFile(filePath, []byte("not valid json {{{"), 0644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for corrupted file: %v", err)
	}
	if cfg.MaxImportRetries != 3 {
		t.Errorf("corrupted file should return defaults, got MaxImportRetries = %d", cfg.MaxImportRetries)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	data := `{"downloadDir": "/original/downloads"}`
	os.WriteFile(filePath, []byte(data), 0644)

	t.Setenv("KINGOACQUIRE_DOWNLOAD_DIR", "/overridden/downloads")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DownloadDir != "/overridden/downloads" {
		t.Errorf("DownloadDir = %q, want %q", cfg.DownloadDir, "/overridden/downloads")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.filePath = filepath.Join(dir, "settings.json")
	cfg.DownloadDir = "/data/downloads"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(cfg.filePath)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}

	var saved Config
	json.Unmarshal(data, &saved)
	if saved.DownloadDir != "/data/downloads" {
		t.Errorf("saved DownloadDir = %q, want %q", saved.DownloadDir, "/data/downloads")
	}
}

func TestConfig_ThreadSafety(t *testing.T) {
	cfg := Default()
	cfg.filePath = filepath.Join(t.TempDir(), "settings.json")

	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			cfg.Get()
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		cfg.Update(func(c *Config) {
			c.DownloadDir = "/path"
		})
	}

	<-done
}

func TestConfig_PathMappingFor(t *testing.T) {
	cfg := Default()
	cfg.PathMappings["qbittorrent"] = PathMapping{Enabled: true, RemotePath: "/downloads", LocalPath: "/mnt/downloads"}

	pm := cfg.PathMappingFor("qbittorrent")
	if !pm.Enabled || pm.LocalPath != "/mnt/downloads" {
		t.Errorf("PathMappingFor(qbittorrent) = %+v, want enabled mapping to /mnt/downloads", pm)
	}

	unset := cfg.PathMappingFor("sabnzbd")
	if unset.Enabled {
		t.Errorf("PathMappingFor(sabnzbd) = %+v, want disabled zero value", unset)
	}
}
