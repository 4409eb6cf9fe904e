package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ScheduledJob is a recurring job definition the scheduler drives: a cron
// expression bound to a job type and a fixed payload. Rows are seeded once
// at startup (idempotently, one row per default) and may also be registered
// dynamically (e.g. per-indexer RSS polling).
type ScheduledJob struct {
	ID           string
	Name         string
	Type         string
	Schedule     string // cron expression
	Enabled      bool
	Payload      string // JSON
	LastRun      *time.Time
	LastRunJobID string
	NextRun      *time.Time
}

const scheduledJobColumns = `id, name, type, schedule, enabled, payload, last_run,
	COALESCE(last_run_job_id,''), next_run`

// ScheduledJobRepository stores recurring job definitions.
type ScheduledJobRepository struct{ db *DB }

func NewScheduledJobRepository(db *DB) *ScheduledJobRepository { return &ScheduledJobRepository{db: db} }

// EnsureSeeded inserts a default recurring job definition if one with the
// same (type, schedule) doesn't already exist — safe to call on every
// startup without duplicating rows.
func (r *ScheduledJobRepository) EnsureSeeded(j *ScheduledJob) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	_, err := r.db.conn.Exec(`
		INSERT INTO scheduled_jobs (id, name, type, schedule, enabled, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, schedule) DO NOTHING`,
		j.ID, j.Name, j.Type, j.Schedule, j.Enabled, j.Payload)
	return err
}

// ListEnabled returns every enabled recurring job.
func (r *ScheduledJobRepository) ListEnabled() ([]*ScheduledJob, error) {
	rows, err := r.db.conn.Query(`SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE enabled = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledJobs(rows)
}

// GetByID returns nil, nil if no such scheduled job exists.
func (r *ScheduledJobRepository) GetByID(id string) (*ScheduledJob, error) {
	row := r.db.conn.QueryRow(`SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	return scanScheduledJob(row)
}

// RecordRun stamps the last firing and the job it produced, and the next
// scheduled time as computed by the cron expression.
func (r *ScheduledJobRepository) RecordRun(id, brokerJobID string, ranAt, nextRun time.Time) error {
	_, err := r.db.conn.Exec(`UPDATE scheduled_jobs SET last_run = ?, last_run_job_id = ?, next_run = ? WHERE id = ?`,
		ranAt, brokerJobID, nextRun, id)
	return err
}

// SetEnabled toggles a recurring job on or off without deleting its definition.
func (r *ScheduledJobRepository) SetEnabled(id string, enabled bool) error {
	_, err := r.db.conn.Exec(`UPDATE scheduled_jobs SET enabled = ? WHERE id = ?`, enabled, id)
	return err
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	err := row.Scan(&j.ID, &j.Name, &j.Type, &j.Schedule, &j.Enabled, &j.Payload, &j.LastRun,
		&j.LastRunJobID, &j.NextRun)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanScheduledJobs(rows *sql.Rows) ([]*ScheduledJob, error) {
	var out []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
