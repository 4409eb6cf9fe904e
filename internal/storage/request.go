package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// RequestStatus mirrors the lifecycle state machine; storage treats it as an
// opaque string so the statemachine package owns the transition rules.
type RequestStatus string

const (
	StatusAwaitingSearch   RequestStatus = "awaiting_search"
	StatusAwaitingDownload RequestStatus = "awaiting_download"
	StatusDownloading      RequestStatus = "downloading"
	StatusAwaitingImport   RequestStatus = "awaiting_import"
	StatusProcessing       RequestStatus = "processing"
	StatusDownloaded       RequestStatus = "downloaded"
	StatusCompleted        RequestStatus = "completed"
	StatusWarn             RequestStatus = "warn"
	StatusFailed           RequestStatus = "failed"
	StatusCancelled        RequestStatus = "cancelled"
)

// Terminal reports whether status never transitions further by automation.
// warn is terminal-for-automation but manually restartable.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Request is a user's ask for an audiobook or e-book to be acquired.
type Request struct {
	ID               string
	UserID           string
	Type             string // audiobook, ebook
	AudiobookID      string
	Status           RequestStatus
	Progress         int
	DownloadAttempts int
	ImportAttempts   int
	MaxImportRetries int
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	LastImportAt     *time.Time
	DeletedAt        *time.Time
}

const requestColumns = `id, user_id, type, audiobook_id, status, progress, download_attempts,
	import_attempts, max_import_retries, COALESCE(error_message,''), created_at, updated_at,
	completed_at, last_import_at, deleted_at`

// RequestRepository is the audit/cross-reference store for requests; the
// broker, not this table, is authoritative for queue ordering.
type RequestRepository struct{ db *DB }

func NewRequestRepository(db *DB) *RequestRepository { return &RequestRepository{db: db} }

// Create inserts a new request, defaulting an empty Status to awaiting_search
// and a zero MaxImportRetries to 3.
func (r *RequestRepository) Create(req *Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = StatusAwaitingSearch
	}
	if req.MaxImportRetries == 0 {
		req.MaxImportRetries = 3
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now

	_, err := r.db.conn.Exec(`
		INSERT INTO requests (id, user_id, type, audiobook_id, status, progress, download_attempts,
			import_attempts, max_import_retries, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.Type, req.AudiobookID, req.Status, req.Progress, req.DownloadAttempts,
		req.ImportAttempts, req.MaxImportRetries, req.ErrorMessage, req.CreatedAt, req.UpdatedAt)
	return err
}

// GetByID returns nil, nil if no such (non-deleted) request exists.
func (r *RequestRepository) GetByID(id string) (*Request, error) {
	row := r.db.conn.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE id = ? AND deleted_at IS NULL`, id)
	return scanRequest(row)
}

// GetByIDIncludingDeleted bypasses the soft-delete filter, for audit lookups.
func (r *RequestRepository) GetByIDIncludingDeleted(id string) (*Request, error) {
	row := r.db.conn.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

// ListByStatus returns non-deleted requests in a given status, oldest first.
func (r *RequestRepository) ListByStatus(status RequestStatus) ([]*Request, error) {
	rows, err := r.db.conn.Query(`SELECT `+requestColumns+` FROM requests
		WHERE status = ? AND deleted_at IS NULL ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ListStale returns non-deleted requests in status that haven't been updated
// since before, used by retry_missing_search / retry_failed_imports.
func (r *RequestRepository) ListStale(status RequestStatus, before time.Time) ([]*Request, error) {
	rows, err := r.db.conn.Query(`SELECT `+requestColumns+` FROM requests
		WHERE status = ? AND deleted_at IS NULL AND updated_at < ? ORDER BY updated_at ASC`, status, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// UpdateStatus transitions status and bumps updated_at. The statemachine
// package is responsible for deciding whether a transition is legal; this
// call is an unconditional write.
func (r *RequestRepository) UpdateStatus(id string, status RequestStatus) error {
	_, err := r.db.conn.Exec(`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now(), id)
	return err
}

// UpdateStatusWithError transitions status and records a failure message.
func (r *RequestRepository) UpdateStatusWithError(id string, status RequestStatus, errMsg string) error {
	_, err := r.db.conn.Exec(`UPDATE requests SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, status, errMsg, time.Now(), id)
	return err
}

// UpdateProgress sets the 0-100 progress indicator (monitor_download).
func (r *RequestRepository) UpdateProgress(id string, progress int) error {
	_, err := r.db.conn.Exec(`UPDATE requests SET progress = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		progress, time.Now(), id)
	return err
}

// IncrementDownloadAttempts bumps the download-attempt counter.
func (r *RequestRepository) IncrementDownloadAttempts(id string) error {
	_, err := r.db.conn.Exec(`UPDATE requests SET download_attempts = download_attempts + 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	return err
}

// IncrementImportAttempts bumps the import-attempt counter and stamps last_import_at.
func (r *RequestRepository) IncrementImportAttempts(id string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE requests SET import_attempts = import_attempts + 1, last_import_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	return err
}

// Complete writes a lifecycle-ending status (completed, warn, failed,
// cancelled) and stamps completed_at.
func (r *RequestRepository) Complete(id string, status RequestStatus) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE requests SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, status, now, now, id)
	return err
}

// CompleteWithError is Complete plus an error message, for the terminal
// transitions (warn, failed) that carry a failure reason.
func (r *RequestRepository) CompleteWithError(id string, status RequestStatus, errMsg string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE requests SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, status, errMsg, now, now, id)
	return err
}

// SoftDelete marks a request deleted; processors must treat any subsequent
// transition attempt on it as a no-op.
func (r *RequestRepository) SoftDelete(id string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE requests SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	return err
}

func scanRequest(row rowScanner) (*Request, error) {
	req := &Request{}
	err := row.Scan(&req.ID, &req.UserID, &req.Type, &req.AudiobookID, &req.Status, &req.Progress,
		&req.DownloadAttempts, &req.ImportAttempts, &req.MaxImportRetries, &req.ErrorMessage,
		&req.CreatedAt, &req.UpdatedAt, &req.CompletedAt, &req.LastImportAt, &req.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]*Request, error) {
	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
