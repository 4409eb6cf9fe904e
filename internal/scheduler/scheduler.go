package scheduler

import (
	"context"
	"fmt"
	"time"

	"kingoacquire/internal/broker"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/storage"
)

// defaultSeed is the fixed set of recurring jobs every installation starts
// with, per spec.md §4.15. Each row is seeded independently at Start so one
// bad row never blocks the rest.
var defaultSeed = []storage.ScheduledJob{
	{Name: "Library Scan", Type: "plex_library_scan", Schedule: "0 */6 * * *", Enabled: false, Payload: "{}"},
	{Name: "Recently Added Check", Type: "plex_recently_added_check", Schedule: "*/5 * * * *", Enabled: true, Payload: "{}"},
	{Name: "Metadata Refresh", Type: "audible_refresh", Schedule: "0 0 * * *", Enabled: false, Payload: "{}"},
	{Name: "Retry Missing Search", Type: "retry_missing_torrents", Schedule: "0 0 * * *", Enabled: true, Payload: "{}"},
	{Name: "Retry Failed Imports", Type: "retry_failed_imports", Schedule: "0 */6 * * *", Enabled: true, Payload: "{}"},
	{Name: "Cleanup Seeded", Type: "cleanup_seeded_torrents", Schedule: "*/30 * * * *", Enabled: true, Payload: "{}"},
	{Name: "RSS Monitor", Type: "monitor_rss_feeds", Schedule: "*/15 * * * *", Enabled: true, Payload: "{}"},
	// No Goodreads collaborator exists anywhere in internal/clients or
	// registerProcessors, so this row starts disabled — enabling it would
	// queue repeatable entries into a ready set with no dispatch loop ever
	// draining it, growing unbounded in Redis instead of degrading safely.
	{Name: "Shelves Sync", Type: "sync_goodreads_shelves", Schedule: "0 */6 * * *", Enabled: false, Payload: "{}"},
}

// Scheduler seeds and drives the recurring jobs table: it registers each
// enabled row as a broker repeatable entry and fires any overdue row
// immediately at startup.
type Scheduler struct {
	broker        broker.Broker
	scheduledJobs *storage.ScheduledJobRepository
}

func New(b broker.Broker, scheduledJobs *storage.ScheduledJobRepository) *Scheduler {
	return &Scheduler{broker: b, scheduledJobs: scheduledJobs}
}

func repeatableKey(id string) string { return fmt.Sprintf("scheduled-%s", id) }

// Start seeds the defaults, registers every enabled row with the broker,
// and triggers any overdue row immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.seedDefaults()

	jobs, err := s.scheduledJobs.ListEnabled()
	if err != nil {
		return err
	}

	for _, j := range jobs {
		if err := s.broker.RegisterRepeatable(ctx, j.Type, j.Payload, j.Schedule, repeatableKey(j.ID)); err != nil {
			logger.Log.Error().Err(err).Str("scheduledJob", j.Name).Msg("failed to register repeatable entry")
			continue
		}
		if IsOverdue(j.LastRun, j.Schedule, time.Now()) {
			if err := s.TriggerJobNow(ctx, j.ID); err != nil {
				logger.Log.Error().Err(err).Str("scheduledJob", j.Name).Msg("failed to trigger overdue job")
			}
		}
	}
	return nil
}

// seedDefaults inserts any default row not already present (matched on
// type+schedule), logging and continuing past individual failures.
func (s *Scheduler) seedDefaults() {
	for _, seed := range defaultSeed {
		row := seed
		if err := s.scheduledJobs.EnsureSeeded(&row); err != nil {
			logger.Log.Error().Err(err).Str("name", seed.Name).Msg("failed to seed default scheduled job")
		}
	}
}

// TriggerJobNow enqueues one typed job for scheduledJobID and records the run.
func (s *Scheduler) TriggerJobNow(ctx context.Context, scheduledJobID string) error {
	job, err := s.scheduledJobs.GetByID(scheduledJobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	brokerJobID, err := s.broker.Enqueue(ctx, job.Type, job.Payload, broker.EnqueueOptions{})
	if err != nil {
		return err
	}

	now := time.Now()
	return s.scheduledJobs.RecordRun(job.ID, brokerJobID, now, now.Add(Interval(job.Schedule)))
}

// Enable registers the repeatable entry after flipping the row enabled,
// per spec.md's enable/disable ordering rule.
func (s *Scheduler) Enable(ctx context.Context, scheduledJobID string) error {
	if err := s.scheduledJobs.SetEnabled(scheduledJobID, true); err != nil {
		return err
	}
	job, err := s.scheduledJobs.GetByID(scheduledJobID)
	if err != nil || job == nil {
		return err
	}
	return s.broker.RegisterRepeatable(ctx, job.Type, job.Payload, job.Schedule, repeatableKey(job.ID))
}

// Disable unregisters the repeatable entry before flipping the row
// disabled, per spec.md's enable/disable ordering rule.
func (s *Scheduler) Disable(ctx context.Context, scheduledJobID string) error {
	job, err := s.scheduledJobs.GetByID(scheduledJobID)
	if err != nil || job == nil {
		return err
	}
	if err := s.broker.UnregisterRepeatable(ctx, job.Schedule, repeatableKey(job.ID)); err != nil {
		return err
	}
	return s.scheduledJobs.SetEnabled(scheduledJobID, false)
}
