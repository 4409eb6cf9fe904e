package broker

import "context"

// Handler processes one job's payload. jobID is the broker-assigned id of
// the job being run, passed through so a handler can bind it into its log
// lines. Returning a retryable error (per internal/errors' Kind) lets the
// broker reschedule with backoff if attempts remain; a terminal error or
// nil both end the job's life (failed or completed respectively). The
// framework in internal/processor builds Handlers with processor.Wrap
// (payload decoding, job-bound logging, result encoding); Job Store
// bookkeeping happens through Callbacks, not inside the Handler.
type Handler func(ctx context.Context, jobID, payload string) (result string, err error)

// Callbacks are invoked by the broker's dispatch loop as a job's lifecycle
// advances. Each one maps directly onto a Job Store patch.
type Callbacks struct {
	OnActive    func(job JobRecord)
	OnCompleted func(job JobRecord, result string)
	OnFailed    func(job JobRecord, err error, willRetry bool)
	OnStalled   func(job JobRecord)
}

// Broker is the Queue Broker Adapter contract (spec-mandated interface).
type Broker interface {
	// Enqueue submits a typed job and returns the broker-assigned id.
	Enqueue(ctx context.Context, jobType string, payload string, opts EnqueueOptions) (brokerJobID string, err error)

	// RegisterRepeatable schedules payload to be enqueued on cron for a
	// stable key; re-registration under the same key is idempotent.
	RegisterRepeatable(ctx context.Context, jobType, payload, cron, key string) error
	// UnregisterRepeatable removes a previously registered repeatable entry.
	UnregisterRepeatable(ctx context.Context, cron, key string) error

	// SetProcessor binds a handler to a job type with a concurrency limit.
	// Must be called before Start for that type to be serviced.
	SetProcessor(jobType string, concurrency int, handler Handler) error

	// SetCallbacks installs the lifecycle event callbacks used to keep the
	// Job Store in sync.
	SetCallbacks(cb Callbacks)

	// Start begins dispatching for every registered processor and
	// repeatable entry. Blocks until ctx is cancelled or Close is called.
	Start(ctx context.Context) error
	// Close stops dispatch loops and releases the underlying connection.
	Close() error

	GetJob(ctx context.Context, brokerJobID string) (*JobRecord, error)
	Retry(ctx context.Context, brokerJobID string) error
	Remove(ctx context.Context, brokerJobID string) error
	Pause(ctx context.Context, jobType string) error
	Resume(ctx context.Context, jobType string) error
	Counts(ctx context.Context, jobType string) (Counts, error)
}
