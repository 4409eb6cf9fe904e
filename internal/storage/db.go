// Package storage is the relational storage layer: a SQLite connection
// wrapper plus one repository per aggregate from the data model (Request,
// DownloadHistory, Job, ScheduledJob, Audiobook, Configuration,
// PathMappingConfig). It is an audit and cross-reference surface, never the
// source of truth for queue ordering — that lives in the broker.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by every repository.
type DB struct {
	conn *sql.DB
	path string
}

// New opens (creating if needed) the database under dataDir and runs migrations.
func New(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "kingoacquire.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB for repositories in this package.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audiobooks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		narrator TEXT,
		audible_asin TEXT,
		series TEXT,
		series_part TEXT,
		year INTEGER,
		cover_art_url TEXT,
		file_path TEXT,
		library_guid TEXT,
		library_rating_key TEXT,
		is_popular BOOLEAN DEFAULT FALSE,
		is_new_release BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL, -- audiobook, ebook
		audiobook_id TEXT NOT NULL REFERENCES audiobooks(id),
		status TEXT NOT NULL DEFAULT 'awaiting_search',
		progress INTEGER NOT NULL DEFAULT 0,
		download_attempts INTEGER NOT NULL DEFAULT 0,
		import_attempts INTEGER NOT NULL DEFAULT 0,
		max_import_retries INTEGER NOT NULL DEFAULT 3,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		last_import_at DATETIME,
		deleted_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_requests_audiobook ON requests(audiobook_id);

	CREATE TABLE IF NOT EXISTS download_history (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id),
		selected BOOLEAN NOT NULL DEFAULT FALSE,
		download_client TEXT NOT NULL, -- qbittorrent, sabnzbd, direct
		download_client_id TEXT,
		torrent_hash TEXT,
		nzb_id TEXT,
		torrent_name TEXT,
		download_path TEXT,
		indexer_name TEXT,
		torrent_url TEXT,
		download_status TEXT NOT NULL DEFAULT 'pending',
		download_error TEXT,
		started_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_download_history_request ON download_history(request_id);
	CREATE INDEX IF NOT EXISTS idx_download_history_selected ON download_history(request_id, selected);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		broker_job_id TEXT NOT NULL UNIQUE,
		request_id TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending', -- pending, active, completed, failed, stuck, cancelled
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		payload TEXT NOT NULL,
		result TEXT,
		error_message TEXT,
		stack_trace TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_request ON jobs(request_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_type_status ON jobs(type, status);

	CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		schedule TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		payload TEXT NOT NULL DEFAULT '{}',
		last_run DATETIME,
		last_run_job_id TEXT,
		next_run DATETIME,
		UNIQUE(type, schedule)
	);

	CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS path_mappings (
		download_client TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		remote_path TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}
