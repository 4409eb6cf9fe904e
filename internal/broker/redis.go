package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const pollInterval = 200 * time.Millisecond

// stallTimeout and stallCheckInterval bound how long a job may sit in a
// type's active set before the reaper treats it as abandoned. A job only
// stays in the active set this long if the goroutine driving it died
// without reaching processJob's deferred ZRem — a crashed worker process,
// not a slow handler (handlers that simply take a while are expected to
// finish and clear their own entry well under this).
const stallTimeout = 10 * time.Minute
const stallCheckInterval = 30 * time.Second

// processorEntry binds a handler to its per-type concurrency semaphore —
// the teacher's activeSlots channel, generalized to one instance per type.
type processorEntry struct {
	handler     Handler
	activeSlots chan struct{}
	paused      bool
	mu          sync.Mutex
}

// RedisBroker implements Broker on sorted sets: one "ready" set ordered by
// priority+sequence per type, one "delayed" set ordered by ready time per
// type, promoted into "ready" as entries become due. Job bodies are stored
// as JSON strings keyed by id; completed/failed ids are kept in bounded
// retention sets trimmed on write.
type RedisBroker struct {
	client *redis.Client
	prefix string

	mu         sync.RWMutex
	processors map[string]*processorEntry
	callbacks  Callbacks

	cronSched   *cron.Cron
	repeatables map[string]cron.EntryID
	repMu       sync.Mutex

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewRedisBroker connects to addr and returns a broker namespaced under prefix.
func NewRedisBroker(addr, prefix string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, apperr.NewWithMessage("broker.NewRedisBroker", apperr.KindRetryableTransient, err, "could not reach redis")
	}
	return &RedisBroker{
		client:      client,
		prefix:      prefix,
		processors:  make(map[string]*processorEntry),
		cronSched:   cron.New(),
		repeatables: make(map[string]cron.EntryID),
		quit:        make(chan struct{}),
	}, nil
}

func (b *RedisBroker) readyKey(jobType string) string   { return fmt.Sprintf("%s:ready:%s", b.prefix, jobType) }
func (b *RedisBroker) delayedKey(jobType string) string { return fmt.Sprintf("%s:delayed:%s", b.prefix, jobType) }
func (b *RedisBroker) completedKey(jobType string) string {
	return fmt.Sprintf("%s:completed:%s", b.prefix, jobType)
}
func (b *RedisBroker) failedKey(jobType string) string { return fmt.Sprintf("%s:failed:%s", b.prefix, jobType) }
func (b *RedisBroker) activeKey(jobType string) string { return fmt.Sprintf("%s:active:%s", b.prefix, jobType) }
func (b *RedisBroker) jobKey(id string) string         { return fmt.Sprintf("%s:job:%s", b.prefix, id) }
func (b *RedisBroker) seqKey() string                  { return fmt.Sprintf("%s:seq", b.prefix) }

const retainCompleted = 100
const retainFailed = 200

// priorityScore orders the ready set highest-priority-first, FIFO within a
// priority tier.
func priorityScore(priority int, seq int64) float64 {
	return float64(-priority)*1e13 + float64(seq)
}

func (b *RedisBroker) saveJob(ctx context.Context, job *JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.jobKey(job.ID), data, 0).Err()
}

func (b *RedisBroker) loadJob(ctx context.Context, id string) (*JobRecord, error) {
	data, err := b.client.Get(ctx, b.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job := &JobRecord{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, jobType, payload string, opts EnqueueOptions) (string, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	bo := DefaultBackoff()
	if opts.Backoff != nil {
		bo = *opts.Backoff
	}

	seq, err := b.client.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return "", apperr.Wrap("broker.Enqueue", err)
	}

	now := time.Now()
	readyAt := now.Add(opts.Delay)
	job := &JobRecord{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		Backoff:     bo,
		Status:      StatusPending,
		CreatedAt:   now,
		ReadyAt:     readyAt,
		Seq:         seq,
	}
	if err := b.saveJob(ctx, job); err != nil {
		return "", apperr.Wrap("broker.Enqueue", err)
	}

	if opts.Delay > 0 {
		err = b.client.ZAdd(ctx, b.delayedKey(jobType), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID}).Err()
	} else {
		err = b.client.ZAdd(ctx, b.readyKey(jobType), redis.Z{Score: priorityScore(job.Priority, job.Seq), Member: job.ID}).Err()
	}
	if err != nil {
		return "", apperr.Wrap("broker.Enqueue", err)
	}
	return job.ID, nil
}

// RegisterRepeatable implements Broker. Re-registration under the same key
// replaces the prior cron entry rather than duplicating it.
func (b *RedisBroker) RegisterRepeatable(ctx context.Context, jobType, payload, cronExpr, key string) error {
	b.repMu.Lock()
	defer b.repMu.Unlock()

	if id, exists := b.repeatables[key]; exists {
		b.cronSched.Remove(id)
		delete(b.repeatables, key)
	}

	entryID, err := b.cronSched.AddFunc(cronExpr, func() {
		if _, err := b.Enqueue(context.Background(), jobType, payload, EnqueueOptions{}); err != nil {
			logger.Log.Error().Err(err).Str("key", key).Str("type", jobType).Msg("repeatable enqueue failed")
		}
	})
	if err != nil {
		return apperr.WrapAs("broker.RegisterRepeatable", apperr.KindTerminalConfig, err)
	}
	b.repeatables[key] = entryID
	return nil
}

// UnregisterRepeatable implements Broker.
func (b *RedisBroker) UnregisterRepeatable(ctx context.Context, cronExpr, key string) error {
	b.repMu.Lock()
	defer b.repMu.Unlock()

	id, exists := b.repeatables[key]
	if !exists {
		return nil
	}
	b.cronSched.Remove(id)
	delete(b.repeatables, key)
	return nil
}

// SetProcessor implements Broker.
func (b *RedisBroker) SetProcessor(jobType string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processors[jobType] = &processorEntry{
		handler:     handler,
		activeSlots: make(chan struct{}, concurrency),
	}
	return nil
}

// SetCallbacks implements Broker.
func (b *RedisBroker) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = cb
}

// Start implements Broker: launches one dispatch loop per registered type
// plus the repeatable-entry cron scheduler, and blocks until ctx is done.
func (b *RedisBroker) Start(ctx context.Context) error {
	b.mu.RLock()
	types := make([]string, 0, len(b.processors))
	for t := range b.processors {
		types = append(types, t)
	}
	b.mu.RUnlock()

	for _, t := range types {
		b.wg.Add(1)
		go b.dispatchLoop(ctx, t)
	}

	b.wg.Add(1)
	go b.reapStalledLoop(ctx, types)

	b.cronSched.Start()

	select {
	case <-ctx.Done():
	case <-b.quit:
	}
	return nil
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	select {
	case <-b.quit:
	default:
		close(b.quit)
	}
	cronCtx := b.cronSched.Stop()
	<-cronCtx.Done()
	b.wg.Wait()
	return b.client.Close()
}

func (b *RedisBroker) dispatchLoop(ctx context.Context, jobType string) {
	defer b.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.quit:
			return
		case <-ticker.C:
			b.promoteDelayed(ctx, jobType)
			b.popAndDispatch(ctx, jobType)
		}
	}
}

// promoteDelayed moves any entries whose ready time has passed from the
// delayed set into the ready set.
func (b *RedisBroker) promoteDelayed(ctx context.Context, jobType string) {
	now := float64(time.Now().UnixMilli())
	ids, err := b.client.ZRangeByScore(ctx, b.delayedKey(jobType), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		job, err := b.loadJob(ctx, id)
		if err != nil || job == nil {
			b.client.ZRem(ctx, b.delayedKey(jobType), id)
			continue
		}
		b.client.ZAdd(ctx, b.readyKey(jobType), redis.Z{Score: priorityScore(job.Priority, job.Seq), Member: id})
		b.client.ZRem(ctx, b.delayedKey(jobType), id)
	}
}

// reapStalledLoop periodically scans every registered type's active set for
// entries older than stallTimeout and reaps them.
func (b *RedisBroker) reapStalledLoop(ctx context.Context, types []string) {
	defer b.wg.Done()

	ticker := time.NewTicker(stallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.quit:
			return
		case <-ticker.C:
			for _, t := range types {
				b.reapStalled(ctx, t)
			}
		}
	}
}

// reapStalled moves every entry in jobType's active set older than
// stallTimeout to either a retry (attempts remain) or failed, firing
// OnStalled first so the Job Store can record the stall before the
// follow-up status write lands.
func (b *RedisBroker) reapStalled(ctx context.Context, jobType string) {
	cutoff := float64(time.Now().Add(-stallTimeout).UnixMilli())
	ids, err := b.client.ZRangeByScore(ctx, b.activeKey(jobType), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", cutoff)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	b.mu.RLock()
	cb := b.callbacks
	b.mu.RUnlock()

	for _, id := range ids {
		removed, err := b.client.ZRem(ctx, b.activeKey(jobType), id).Result()
		if err != nil || removed == 0 {
			// another reaper tick or the original goroutine cleared it first
			continue
		}

		job, err := b.loadJob(ctx, id)
		if err != nil || job == nil {
			continue
		}

		if cb.OnStalled != nil {
			cb.OnStalled(*job)
		}

		if job.Attempts < job.MaxAttempts {
			delay := NextRetryDelay(job.Attempts, job.Backoff)
			job.Status = StatusPending
			job.Error = "stalled: worker did not report completion"
			job.ReadyAt = time.Now().Add(delay)
			b.saveJob(ctx, job)
			b.client.ZAdd(ctx, b.delayedKey(jobType), redis.Z{Score: float64(job.ReadyAt.UnixMilli()), Member: id})
		} else {
			job.Status = StatusFailed
			job.Error = "stalled: worker did not report completion"
			b.saveJob(ctx, job)
			b.client.ZAdd(ctx, b.failedKey(jobType), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
			b.client.ZRemRangeByRank(ctx, b.failedKey(jobType), 0, -retainFailed-1)
			if cb.OnFailed != nil {
				cb.OnFailed(*job, apperr.NewWithMessage("broker.reapStalled", apperr.KindTerminalRequest, apperr.ErrTimeout, job.Error), false)
			}
		}
	}
}

func (b *RedisBroker) popAndDispatch(ctx context.Context, jobType string) {
	b.mu.RLock()
	entry, ok := b.processors[jobType]
	b.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	paused := entry.paused
	entry.mu.Unlock()
	if paused {
		return
	}

	for {
		ids, err := b.client.ZRangeByScore(ctx, b.readyKey(jobType), &redis.ZRangeBy{Min: "-inf", Max: "+inf", Offset: 0, Count: 1}).Result()
		if err != nil || len(ids) == 0 {
			return
		}
		id := ids[0]
		removed, err := b.client.ZRem(ctx, b.readyKey(jobType), id).Result()
		if err != nil || removed == 0 {
			// lost the race to another dispatcher; move on
			continue
		}

		select {
		case entry.activeSlots <- struct{}{}:
		default:
			// no free slot: put the job back and stop for this tick
			job, loadErr := b.loadJob(ctx, id)
			if loadErr == nil && job != nil {
				b.client.ZAdd(ctx, b.readyKey(jobType), redis.Z{Score: priorityScore(job.Priority, job.Seq), Member: id})
			}
			return
		}

		b.wg.Add(1)
		go func(jobID string) {
			defer b.wg.Done()
			defer func() { <-entry.activeSlots }()
			b.processJob(ctx, jobType, jobID, entry)
		}(id)
	}
}

func (b *RedisBroker) processJob(ctx context.Context, jobType, id string, entry *processorEntry) {
	job, err := b.loadJob(ctx, id)
	if err != nil || job == nil {
		return
	}

	job.Status = StatusActive
	job.Attempts++
	b.saveJob(ctx, job)

	b.client.ZAdd(ctx, b.activeKey(jobType), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
	defer b.client.ZRem(ctx, b.activeKey(jobType), id)

	b.mu.RLock()
	cb := b.callbacks
	b.mu.RUnlock()
	if cb.OnActive != nil {
		cb.OnActive(*job)
	}

	result, procErr := entry.handler(ctx, job.ID, job.Payload)

	if procErr == nil {
		job.Status = StatusCompleted
		job.Result = result
		b.saveJob(ctx, job)
		b.client.ZAdd(ctx, b.completedKey(jobType), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
		b.client.ZRemRangeByRank(ctx, b.completedKey(jobType), 0, -retainCompleted-1)
		if cb.OnCompleted != nil {
			cb.OnCompleted(*job, result)
		}
		return
	}

	retryable := apperr.IsRetryable(procErr)
	willRetry := retryable && job.Attempts < job.MaxAttempts
	if willRetry {
		delay := NextRetryDelay(job.Attempts, job.Backoff)
		job.Status = StatusPending
		job.Error = procErr.Error()
		job.ReadyAt = time.Now().Add(delay)
		b.saveJob(ctx, job)
		b.client.ZAdd(ctx, b.delayedKey(jobType), redis.Z{Score: float64(job.ReadyAt.UnixMilli()), Member: id})
	} else {
		job.Status = StatusFailed
		job.Error = procErr.Error()
		b.saveJob(ctx, job)
		b.client.ZAdd(ctx, b.failedKey(jobType), redis.Z{Score: float64(time.Now().UnixMilli()), Member: id})
		b.client.ZRemRangeByRank(ctx, b.failedKey(jobType), 0, -retainFailed-1)
	}
	if cb.OnFailed != nil {
		cb.OnFailed(*job, procErr, willRetry)
	}
}

// GetJob implements Broker.
func (b *RedisBroker) GetJob(ctx context.Context, brokerJobID string) (*JobRecord, error) {
	return b.loadJob(ctx, brokerJobID)
}

// Retry implements Broker: resets attempts and re-queues a failed job.
func (b *RedisBroker) Retry(ctx context.Context, brokerJobID string) error {
	job, err := b.loadJob(ctx, brokerJobID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperr.New("broker.Retry", apperr.KindTerminalRequest, apperr.ErrNotFound)
	}
	job.Status = StatusPending
	job.Attempts = 0
	job.Error = ""
	if err := b.saveJob(ctx, job); err != nil {
		return err
	}
	return b.client.ZAdd(ctx, b.readyKey(job.Type), redis.Z{Score: priorityScore(job.Priority, job.Seq), Member: job.ID}).Err()
}

// Remove implements Broker: deletes a job from every set it may be queued in.
func (b *RedisBroker) Remove(ctx context.Context, brokerJobID string) error {
	job, err := b.loadJob(ctx, brokerJobID)
	if err != nil || job == nil {
		return err
	}
	b.client.ZRem(ctx, b.readyKey(job.Type), brokerJobID)
	b.client.ZRem(ctx, b.delayedKey(job.Type), brokerJobID)
	return b.client.Del(ctx, b.jobKey(brokerJobID)).Err()
}

// Pause implements Broker.
func (b *RedisBroker) Pause(ctx context.Context, jobType string) error {
	b.mu.RLock()
	entry, ok := b.processors[jobType]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	entry.paused = true
	entry.mu.Unlock()
	return nil
}

// Resume implements Broker.
func (b *RedisBroker) Resume(ctx context.Context, jobType string) error {
	b.mu.RLock()
	entry, ok := b.processors[jobType]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	entry.paused = false
	entry.mu.Unlock()
	return nil
}

// Counts implements Broker.
func (b *RedisBroker) Counts(ctx context.Context, jobType string) (Counts, error) {
	waiting, err := b.client.ZCard(ctx, b.readyKey(jobType)).Result()
	if err != nil {
		return Counts{}, err
	}
	delayed, err := b.client.ZCard(ctx, b.delayedKey(jobType)).Result()
	if err != nil {
		return Counts{}, err
	}
	completed, err := b.client.ZCard(ctx, b.completedKey(jobType)).Result()
	if err != nil {
		return Counts{}, err
	}
	failed, err := b.client.ZCard(ctx, b.failedKey(jobType)).Result()
	if err != nil {
		return Counts{}, err
	}
	active, err := b.client.ZCard(ctx, b.activeKey(jobType)).Result()
	if err != nil {
		return Counts{}, err
	}
	return Counts{Waiting: waiting, Active: active, Delayed: delayed, Completed: completed, Failed: failed}, nil
}
