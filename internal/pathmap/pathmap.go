// Package pathmap rewrites a download client's view of a file path into
// this process's view of the same path, for setups where the client and
// the worker don't share a filesystem root.
package pathmap

import "strings"

// Config is a single download client's remote-to-local path mapping.
type Config struct {
	Enabled    bool
	RemotePath string
	LocalPath  string
}

// Transform rewrites path using cfg. If mapping is disabled, or path
// doesn't start with cfg.RemotePath, path is returned unchanged. No
// separator normalization is performed beyond the prefix replacement —
// callers are responsible for joining any custom subpath before calling
// Transform.
func Transform(path string, cfg Config) string {
	if !cfg.Enabled {
		return path
	}
	if !strings.HasPrefix(path, cfg.RemotePath) {
		return path
	}
	return cfg.LocalPath + strings.TrimPrefix(path, cfg.RemotePath)
}
