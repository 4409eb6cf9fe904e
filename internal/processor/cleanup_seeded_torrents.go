package processor

import (
	"context"
	"encoding/json"

	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/storage"
)

type indexerSeedingConfig struct {
	Name               string `json:"name"`
	SeedingTimeMinutes int64  `json:"seedingTimeMinutes"`
}

// CleanupSeededTorrents deletes-with-data any completed request's torrent
// once it has met its indexer's configured minimum seeding time, per
// spec.md §4.13. seedingTimeMinutes=0 means never clean.
func (d *Deps) CleanupSeededTorrents(ctx context.Context, p RecurringPayload) (CleanupSeededTorrentsResult, error) {
	minutesByIndexer, err := d.seedingMinutesByIndexer()
	if err != nil {
		return CleanupSeededTorrentsResult{}, apperr.WrapAs("cleanup_seeded_torrents", apperr.KindRetryableTransient, err)
	}

	requests, err := d.Requests.ListByStatus(storage.StatusCompleted)
	if err != nil {
		return CleanupSeededTorrentsResult{}, apperr.WrapAs("cleanup_seeded_torrents", apperr.KindRetryableTransient, err)
	}
	if len(requests) > 100 {
		requests = requests[:100]
	}

	var result CleanupSeededTorrentsResult
	for _, req := range requests {
		history, err := d.DownloadHistory.GetSelected(req.ID)
		if err != nil || history == nil || history.DownloadClientID == "" {
			continue
		}
		if protocolFor(history.DownloadClient) != "torrent" {
			continue
		}

		minMinutes, ok := minutesByIndexer[history.IndexerName]
		if !ok {
			continue
		}
		if minMinutes == 0 {
			result.Unlimited++
			continue
		}

		client, err := d.Clients.TorrentClient(history.IndexerName)
		if err != nil {
			continue
		}
		status, err := client.GetTorrent(ctx, history.DownloadClientID)
		if err != nil {
			continue
		}

		if status.SeedingTimeSec >= minMinutes*60 {
			if err := client.DeleteTorrent(ctx, history.DownloadClientID, true); err == nil {
				result.Cleaned++
			}
		} else {
			result.StillSeeding++
		}
	}
	return result, nil
}

func (d *Deps) seedingMinutesByIndexer() (map[string]int64, error) {
	raw, ok, err := d.Configuration.Get("prowlarr_indexers")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	if !ok || raw == "" {
		return out, nil
	}
	var rows []indexerSeedingConfig
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return out, nil
	}
	for _, r := range rows {
		out[r.Name] = r.SeedingTimeMinutes
	}
	return out, nil
}
