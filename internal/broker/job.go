// Package broker is the Queue Broker Adapter: a durable, priority- and
// delay-aware job queue with per-type concurrency limits, retries with
// exponential backoff, and repeatable (cron-driven) entries. RedisBroker is
// the only implementation; the Broker interface exists so processors and
// the scheduler depend on behavior, not on Redis.
package broker

import "time"

// Status mirrors the Job Store's status column.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStuck     Status = "stuck"
	StatusCancelled Status = "cancelled"
)

// JobRecord is the broker-side representation of one enqueued unit of work,
// persisted as a Redis hash keyed by its id. It carries enough state to
// survive a process restart and resume retries without losing attempts.
type JobRecord struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Payload     string    `json:"payload"` // opaque JSON, bound to a typed shape by the processor
	Priority    int       `json:"priority"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	Backoff     Backoff   `json:"backoff"`
	Status      Status    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ReadyAt     time.Time `json:"readyAt"` // when the job becomes eligible to run (enqueue time + delay, or backoff-computed retry time)
	Seq         int64     `json:"seq"`     // monotonic enqueue sequence, used as a priority tie-breaker
}

// Backoff configures retry spacing for a job.
type Backoff struct {
	Exponential bool `json:"exponential"`
	InitialMs   int  `json:"initialMs"`
}

// DefaultBackoff matches the spec's default: exponential starting at 2000ms.
func DefaultBackoff() Backoff {
	return Backoff{Exponential: true, InitialMs: 2000}
}

// EnqueueOptions customizes a single Enqueue call. Zero values fall back to
// the broker's defaults (priority 0, no delay, 3 attempts, DefaultBackoff).
type EnqueueOptions struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
	Backoff     *Backoff
}

// Counts summarizes queue depth for a single job type.
type Counts struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
}
