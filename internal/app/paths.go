// Package app resolves the on-disk layout the worker process uses: where
// its database and logs live, and where downloads/media land absent
// explicit configuration.
package app

import (
	"os"
	"path/filepath"
)

// Paths holds the directories the worker reads and writes.
type Paths struct {
	DataDir     string // state dir: sqlite db + logs
	DownloadDir string // default download_dir when config leaves it unset
	MediaDir    string // default media_dir when config leaves it unset
}

// GetPaths resolves the default paths from XDG-style environment variables,
// falling back to the user's config/home directory.
func GetPaths() (*Paths, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(configDir, "kingoacquire")
	if v := os.Getenv("KINGOACQUIRE_DATA_DIR"); v != "" {
		dataDir = v
	}

	return &Paths{
		DataDir:     dataDir,
		DownloadDir: filepath.Join(homeDir, "kingoacquire", "downloads"),
		MediaDir:    filepath.Join(homeDir, "kingoacquire", "media"),
	}, nil
}

// EnsureDirectories creates all required directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.DownloadDir, p.MediaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
