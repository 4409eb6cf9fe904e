package storage

import "database/sql"

// PathMappingRow is the persisted form of a download-client path mapping
// (remote path as the client sees it, local path as this process sees it).
// See internal/pathmap for the transform it drives.
type PathMappingRow struct {
	DownloadClient string
	Enabled        bool
	RemotePath     string
	LocalPath      string
}

// PathMappingRepository stores per-download-client path mappings.
type PathMappingRepository struct{ db *DB }

func NewPathMappingRepository(db *DB) *PathMappingRepository { return &PathMappingRepository{db: db} }

// Upsert creates or replaces the mapping for a download client.
func (r *PathMappingRepository) Upsert(m *PathMappingRow) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO path_mappings (download_client, enabled, remote_path, local_path) VALUES (?, ?, ?, ?)
		ON CONFLICT(download_client) DO UPDATE SET
			enabled = excluded.enabled, remote_path = excluded.remote_path, local_path = excluded.local_path`,
		m.DownloadClient, m.Enabled, m.RemotePath, m.LocalPath)
	return err
}

// Get returns nil, nil if no mapping is configured for the given client.
func (r *PathMappingRepository) Get(downloadClient string) (*PathMappingRow, error) {
	row := r.db.conn.QueryRow(`SELECT download_client, enabled, remote_path, local_path
		FROM path_mappings WHERE download_client = ?`, downloadClient)
	m := &PathMappingRow{}
	err := row.Scan(&m.DownloadClient, &m.Enabled, &m.RemotePath, &m.LocalPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// All returns every configured path mapping.
func (r *PathMappingRepository) All() ([]*PathMappingRow, error) {
	rows, err := r.db.conn.Query(`SELECT download_client, enabled, remote_path, local_path FROM path_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PathMappingRow
	for rows.Next() {
		m := &PathMappingRow{}
		if err := rows.Scan(&m.DownloadClient, &m.Enabled, &m.RemotePath, &m.LocalPath); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
