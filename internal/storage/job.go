package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// JobStatus mirrors a broker job's lifecycle as last observed by its
// onActive/onCompleted/onFailed/onStalled callbacks.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobStuck     JobStatus = "stuck"
	JobCancelled JobStatus = "cancelled"
)

// Job is the durable audit record of one broker-enqueued unit of work. The
// broker owns scheduling and retry; this row is a read-side projection kept
// in sync by the processor framework's callbacks so the queue's history
// survives a broker restart or redis flush.
type Job struct {
	ID           string
	BrokerJobID  string
	RequestID    string
	Type         string
	Status       JobStatus
	Priority     int
	Attempts     int
	MaxAttempts  int
	Payload      string // JSON
	Result       string // JSON
	ErrorMessage string
	StackTrace   string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

const jobColumns = `id, broker_job_id, COALESCE(request_id,''), type, status, priority, attempts,
	max_attempts, payload, COALESCE(result,''), COALESCE(error_message,''), COALESCE(stack_trace,''),
	created_at, started_at, completed_at, updated_at`

// JobRepository is the audit trail for broker-dispatched jobs.
type JobRepository struct{ db *DB }

func NewJobRepository(db *DB) *JobRepository { return &JobRepository{db: db} }

// Create records a newly enqueued job.
func (r *JobRepository) Create(j *Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	now := time.Now()
	j.CreatedAt, j.UpdatedAt = now, now

	_, err := r.db.conn.Exec(`
		INSERT INTO jobs (id, broker_job_id, request_id, type, status, priority, attempts, max_attempts,
			payload, result, error_message, stack_trace, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.BrokerJobID, j.RequestID, j.Type, j.Status, j.Priority, j.Attempts, j.MaxAttempts,
		j.Payload, j.Result, j.ErrorMessage, j.StackTrace, j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt)
	return err
}

// GetByBrokerJobID looks a job up by the id the broker assigned it.
func (r *JobRepository) GetByBrokerJobID(brokerJobID string) (*Job, error) {
	row := r.db.conn.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE broker_job_id = ?`, brokerJobID)
	return scanJob(row)
}

// ListByRequest returns every job tied to a request, oldest first.
func (r *JobRepository) ListByRequest(requestID string) ([]*Job, error) {
	rows, err := r.db.conn.Query(`SELECT `+jobColumns+` FROM jobs WHERE request_id = ? ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListByStatus returns jobs in a given status, oldest first.
func (r *JobRepository) ListByStatus(status JobStatus) ([]*Job, error) {
	rows, err := r.db.conn.Query(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkActive records the onActive callback.
func (r *JobRepository) MarkActive(brokerJobID string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE jobs SET status = ?, attempts = attempts + 1, started_at = ?, updated_at = ?
		WHERE broker_job_id = ?`, JobActive, now, now, brokerJobID)
	return err
}

// MarkCompleted records the onCompleted callback with the handler's result payload.
func (r *JobRepository) MarkCompleted(brokerJobID, result string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE jobs SET status = ?, result = ?, completed_at = ?, updated_at = ?
		WHERE broker_job_id = ?`, JobCompleted, result, now, now, brokerJobID)
	return err
}

// MarkFailed records the onFailed callback with the status the caller
// chooses: processor.InstallCallbacks passes JobActive while a retry is
// pending, JobStuck once max_attempts is exhausted, and JobFailed otherwise.
func (r *JobRepository) MarkFailed(brokerJobID string, status JobStatus, errMsg, stackTrace string) error {
	now := time.Now()
	_, err := r.db.conn.Exec(`UPDATE jobs SET status = ?, error_message = ?, stack_trace = ?, updated_at = ?
		WHERE broker_job_id = ?`, status, errMsg, stackTrace, now, brokerJobID)
	return err
}

// MarkCancelled records a job pulled out of the queue before it ran.
func (r *JobRepository) MarkCancelled(brokerJobID string) error {
	_, err := r.db.conn.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE broker_job_id = ?`,
		JobCancelled, time.Now(), brokerJobID)
	return err
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	err := row.Scan(&j.ID, &j.BrokerJobID, &j.RequestID, &j.Type, &j.Status, &j.Priority, &j.Attempts,
		&j.MaxAttempts, &j.Payload, &j.Result, &j.ErrorMessage, &j.StackTrace, &j.CreatedAt, &j.StartedAt,
		&j.CompletedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
