package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DownloadHistory records one candidate a request tried (or could have
// tried): the chosen torrent/nzb, its indexer, and the outcome of the
// download attempt. A request accumulates many rows; only one is selected
// at a time.
type DownloadHistory struct {
	ID               string
	RequestID        string
	Selected         bool
	DownloadClient   string // qbittorrent, sabnzbd, direct
	DownloadClientID string
	TorrentHash      string
	NZBID            string
	TorrentName      string
	DownloadPath     string
	IndexerName      string
	TorrentURL       string
	DownloadStatus   string // pending, downloading, completed, failed
	DownloadError    string
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

const downloadHistoryColumns = `id, request_id, selected, download_client, COALESCE(download_client_id,''),
	COALESCE(torrent_hash,''), COALESCE(nzb_id,''), COALESCE(torrent_name,''), COALESCE(download_path,''),
	COALESCE(indexer_name,''), COALESCE(torrent_url,''), download_status, COALESCE(download_error,''),
	started_at, completed_at`

// DownloadHistoryRepository stores per-candidate download attempts.
type DownloadHistoryRepository struct{ db *DB }

func NewDownloadHistoryRepository(db *DB) *DownloadHistoryRepository {
	return &DownloadHistoryRepository{db: db}
}

// Create inserts a download history row in "pending" status.
func (r *DownloadHistoryRepository) Create(h *DownloadHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.DownloadStatus == "" {
		h.DownloadStatus = "pending"
	}
	_, err := r.db.conn.Exec(`
		INSERT INTO download_history (id, request_id, selected, download_client, download_client_id,
			torrent_hash, nzb_id, torrent_name, download_path, indexer_name, torrent_url,
			download_status, download_error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.RequestID, h.Selected, h.DownloadClient, h.DownloadClientID, h.TorrentHash, h.NZBID,
		h.TorrentName, h.DownloadPath, h.IndexerName, h.TorrentURL, h.DownloadStatus, h.DownloadError,
		h.StartedAt, h.CompletedAt)
	return err
}

// ListByRequest returns every candidate tried for a request, newest first.
func (r *DownloadHistoryRepository) ListByRequest(requestID string) ([]*DownloadHistory, error) {
	rows, err := r.db.conn.Query(`SELECT `+downloadHistoryColumns+` FROM download_history
		WHERE request_id = ? ORDER BY rowid DESC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloadHistories(rows)
}

// GetSelected returns the currently selected candidate for a request, if any.
func (r *DownloadHistoryRepository) GetSelected(requestID string) (*DownloadHistory, error) {
	row := r.db.conn.QueryRow(`SELECT `+downloadHistoryColumns+` FROM download_history
		WHERE request_id = ? AND selected = TRUE LIMIT 1`, requestID)
	return scanDownloadHistory(row)
}

// Select marks h as the chosen candidate and unselects any previous one for
// the same request (so a retry replaces rather than duplicates the active pick).
func (r *DownloadHistoryRepository) Select(requestID, id string) error {
	tx, err := r.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE download_history SET selected = FALSE WHERE request_id = ?`, requestID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE download_history SET selected = TRUE WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateStatus records a status transition (and error, if any) for one candidate.
func (r *DownloadHistoryRepository) UpdateStatus(id, status, errMsg string) error {
	_, err := r.db.conn.Exec(`UPDATE download_history SET download_status = ?, download_error = ? WHERE id = ?`,
		status, errMsg, id)
	return err
}

// MarkStarted stamps started_at for a candidate entering "downloading".
func (r *DownloadHistoryRepository) MarkStarted(id string) error {
	_, err := r.db.conn.Exec(`UPDATE download_history SET download_status = 'downloading', started_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

// MarkCompleted stamps completed_at and the download path for a finished candidate.
func (r *DownloadHistoryRepository) MarkCompleted(id, downloadPath string) error {
	_, err := r.db.conn.Exec(`UPDATE download_history SET download_status = 'completed', download_path = ?, completed_at = ?
		WHERE id = ?`, downloadPath, time.Now(), id)
	return err
}

func scanDownloadHistory(row rowScanner) (*DownloadHistory, error) {
	h := &DownloadHistory{}
	err := row.Scan(&h.ID, &h.RequestID, &h.Selected, &h.DownloadClient, &h.DownloadClientID,
		&h.TorrentHash, &h.NZBID, &h.TorrentName, &h.DownloadPath, &h.IndexerName, &h.TorrentURL,
		&h.DownloadStatus, &h.DownloadError, &h.StartedAt, &h.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func scanDownloadHistories(rows *sql.Rows) ([]*DownloadHistory, error) {
	var out []*DownloadHistory
	for rows.Next() {
		h, err := scanDownloadHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
