package processor

import (
	"context"
	"time"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/storage"
)

// RecentlyAddedCheck re-enqueues match_library for every request stuck at
// downloaded — files are on disk but a prior match_library run either
// errored or hadn't run yet. Takes at most 100 rows per run and, like
// retry_missing_search, sleeps recurringBatchSleep between enqueues.
func (d *Deps) RecentlyAddedCheck(ctx context.Context, p RecurringPayload) (RecentlyAddedCheckResult, error) {
	requests, err := d.Requests.ListByStatus(storage.StatusDownloaded)
	if err != nil {
		return RecentlyAddedCheckResult{}, apperr.WrapAs("plex_recently_added_check", apperr.KindRetryableTransient, err)
	}
	if len(requests) > 100 {
		requests = requests[:100]
	}

	enqueued := 0
	for i, req := range requests {
		audiobook, err := d.Audiobooks.GetByID(req.AudiobookID)
		if err != nil || audiobook == nil {
			continue
		}
		payload := MatchLibraryPayload{
			RequestID:   req.ID,
			AudiobookID: audiobook.ID,
			Title:       audiobook.Title,
			Author:      audiobook.Author,
		}
		if _, err := d.Enqueue(ctx, "match_library", req.ID, payload, broker.EnqueueOptions{}); err != nil {
			continue
		}
		enqueued++
		if i < len(requests)-1 {
			select {
			case <-ctx.Done():
				return RecentlyAddedCheckResult{Enqueued: enqueued}, ctx.Err()
			case <-time.After(recurringBatchSleep):
			}
		}
	}
	return RecentlyAddedCheckResult{Enqueued: enqueued}, nil
}
