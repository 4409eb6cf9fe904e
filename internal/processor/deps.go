// Package processor implements the Processor Framework: the typed handlers
// that advance a Request through its lifecycle, plus the recurring jobs that
// feed them. Each processor is a small, idempotent function of (payload,
// current row state) -> (state transition, next enqueue); the framework
// wraps them with JSON marshalling, logging, and error classification
// before handing them to the broker as a broker.Handler.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"kingoacquire/internal/broker"
	"kingoacquire/internal/clients"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/statemachine"
	"kingoacquire/internal/storage"
)

// Deps bundles everything a processor needs: repositories, the broker (for
// self re-enqueue and handing off to the next job), the client factory, and
// the state-machine helper. One Deps is shared by every processor in a
// process.
type Deps struct {
	Requests        *storage.RequestRepository
	Audiobooks      *storage.AudiobookRepository
	DownloadHistory *storage.DownloadHistoryRepository
	Jobs            *storage.JobRepository
	ScheduledJobs   *storage.ScheduledJobRepository
	Configuration   *storage.ConfigurationRepository
	PathMappings    *storage.PathMappingRepository
	Transitioner    *statemachine.Transitioner
	Broker          broker.Broker
	Clients         *clients.Factory
	Now             func() time.Time
}

func NewDeps(db *storage.DB, b broker.Broker, factory *clients.Factory) *Deps {
	requests := storage.NewRequestRepository(db)
	return &Deps{
		Requests:        requests,
		Audiobooks:      storage.NewAudiobookRepository(db),
		DownloadHistory: storage.NewDownloadHistoryRepository(db),
		Jobs:            storage.NewJobRepository(db),
		ScheduledJobs:   storage.NewScheduledJobRepository(db),
		Configuration:   storage.NewConfigurationRepository(db),
		PathMappings:    storage.NewPathMappingRepository(db),
		Transitioner:    statemachine.NewTransitioner(requests),
		Broker:          b,
		Clients:         factory,
		Now:             time.Now,
	}
}

// Enqueue submits jobType to the broker and records the audit row in the
// Job Store, tying it to requestID (empty for recurring/non-request jobs).
func (d *Deps) Enqueue(ctx context.Context, jobType, requestID string, payload any, opts broker.EnqueueOptions) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	brokerJobID, err := d.Broker.Enqueue(ctx, jobType, string(body), opts)
	if err != nil {
		return "", err
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	if err := d.Jobs.Create(&storage.Job{
		BrokerJobID: brokerJobID,
		RequestID:   requestID,
		Type:        jobType,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		Payload:     string(body),
	}); err != nil {
		logger.Log.Error().Err(err).Str("jobType", jobType).Msg("failed to record job store audit row")
	}
	return brokerJobID, nil
}

// InstallCallbacks wires the broker's lifecycle callbacks to keep the Job
// Store's read-side projection in sync; these callbacks, not the Handlers
// built by Wrap, are where the Job Store rows get updated.
func (d *Deps) InstallCallbacks() {
	d.Broker.SetCallbacks(broker.Callbacks{
		OnActive: func(job broker.JobRecord) {
			if err := d.Jobs.MarkActive(job.ID); err != nil {
				logger.Log.Error().Err(err).Str("jobId", job.ID).Msg("failed to mark job active")
			}
		},
		OnCompleted: func(job broker.JobRecord, result string) {
			if err := d.Jobs.MarkCompleted(job.ID, result); err != nil {
				logger.Log.Error().Err(err).Str("jobId", job.ID).Msg("failed to mark job completed")
			}
		},
		OnFailed: func(job broker.JobRecord, err error, willRetry bool) {
			status := storage.JobFailed
			if willRetry {
				status = storage.JobActive
			} else if job.Attempts >= job.MaxAttempts {
				status = storage.JobStuck
			}
			if dbErr := d.Jobs.MarkFailed(job.ID, status, err.Error(), ""); dbErr != nil {
				logger.Log.Error().Err(dbErr).Str("jobId", job.ID).Msg("failed to mark job failed")
			}
		},
		OnStalled: func(job broker.JobRecord) {
			logger.Log.Warn().Str("jobId", job.ID).Str("type", job.Type).Msg("job stalled")
			if err := d.Jobs.MarkFailed(job.ID, storage.JobStuck, "stalled: worker did not report completion", ""); err != nil {
				logger.Log.Error().Err(err).Str("jobId", job.ID).Msg("failed to mark job stuck after stall")
			}
		},
	})
}
