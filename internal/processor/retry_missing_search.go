package processor

import (
	"context"
	"time"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/storage"
)

const recurringBatchSleep = 100 * time.Millisecond

// RetryMissingSearch re-enqueues search_indexers for every request stuck
// awaiting_search, spacing enqueues to avoid connection-pool bursts.
func (d *Deps) RetryMissingSearch(ctx context.Context, p RecurringPayload) (RetryMissingSearchResult, error) {
	requests, err := d.Requests.ListByStatus(storage.StatusAwaitingSearch)
	if err != nil {
		return RetryMissingSearchResult{}, apperr.WrapAs("retry_missing_search", apperr.KindRetryableTransient, err)
	}
	if len(requests) > 50 {
		requests = requests[:50]
	}

	enqueued := 0
	for i, req := range requests {
		audiobook, err := d.Audiobooks.GetByID(req.AudiobookID)
		if err != nil || audiobook == nil {
			continue
		}
		payload := SearchIndexersPayload{
			RequestID: req.ID,
			Audiobook: PayloadAudiobook{ID: audiobook.ID, Title: audiobook.Title, Author: audiobook.Author, ASIN: audiobook.AudibleASIN},
		}
		if _, err := d.Enqueue(ctx, "search_indexers", req.ID, payload, broker.EnqueueOptions{}); err != nil {
			continue
		}
		enqueued++
		if i < len(requests)-1 {
			select {
			case <-ctx.Done():
				return RetryMissingSearchResult{Enqueued: enqueued}, ctx.Err()
			case <-time.After(recurringBatchSleep):
			}
		}
	}
	return RetryMissingSearchResult{Enqueued: enqueued}, nil
}
