package processor

import (
	"context"
	"path/filepath"
	"time"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/pathmap"
	"kingoacquire/internal/storage"
)

// RetryFailedImports resolves a download path for every request stuck
// awaiting_import and enqueues organize_files, per spec.md §4.11's
// three-tier priority.
func (d *Deps) RetryFailedImports(ctx context.Context, p RecurringPayload) (RetryFailedImportsResult, error) {
	requests, err := d.Requests.ListByStatus(storage.StatusAwaitingImport)
	if err != nil {
		return RetryFailedImportsResult{}, apperr.WrapAs("retry_failed_imports", apperr.KindRetryableTransient, err)
	}
	if len(requests) > 50 {
		requests = requests[:50]
	}

	enqueued, skipped := 0, 0
	for i, req := range requests {
		path, ok := d.resolveDownloadPath(ctx, req)
		if !ok {
			skipped++
			continue
		}
		payload := OrganizeFilesPayload{RequestID: req.ID, AudiobookID: req.AudiobookID, DownloadPath: path}
		if _, err := d.Enqueue(ctx, "organize_files", req.ID, payload, broker.EnqueueOptions{}); err != nil {
			skipped++
			continue
		}
		enqueued++
		if i < len(requests)-1 {
			select {
			case <-ctx.Done():
				return RetryFailedImportsResult{Enqueued: enqueued, Skipped: skipped}, ctx.Err()
			case <-time.After(recurringBatchSleep):
			}
		}
	}
	return RetryFailedImportsResult{Enqueued: enqueued, Skipped: skipped}, nil
}

// resolveDownloadPath implements spec.md §4.11's priority order: the
// recorded DownloadHistory path, then a live client query, then a
// reconstructed fallback path — each but the first passed through the
// client's configured PathMapper.
func (d *Deps) resolveDownloadPath(ctx context.Context, req *storage.Request) (string, bool) {
	history, err := d.DownloadHistory.GetSelected(req.ID)
	if err != nil || history == nil {
		return "", false
	}

	if history.DownloadPath != "" {
		return history.DownloadPath, true
	}

	mapping := d.pathMappingConfig(history.DownloadClient)

	if history.DownloadClientID != "" {
		protocol := protocolFor(history.DownloadClient)
		client, err := d.Clients.DownloadClientFor(protocol, history.DownloadClient)
		if err == nil {
			path, _, _, _, err := client.GetDownload(ctx, history.DownloadClientID)
			if err == nil && path != "" {
				return pathmap.Transform(path, mapping), true
			}
		}
	}

	downloadDir, _, _ := d.Configuration.Get("download_dir")
	if downloadDir == "" || history.TorrentName == "" {
		return "", false
	}
	customPath, _, _ := d.Configuration.Get("custom_path")
	fallback := filepath.Join(downloadDir, customPath, history.TorrentName)
	return pathmap.Transform(fallback, mapping), true
}

func (d *Deps) pathMappingConfig(downloadClient string) pathmap.Config {
	row, err := d.PathMappings.Get(downloadClient)
	if err != nil || row == nil {
		return pathmap.Config{}
	}
	return pathmap.Config{Enabled: row.Enabled, RemotePath: row.RemotePath, LocalPath: row.LocalPath}
}
