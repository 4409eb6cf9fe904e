package processor

import (
	"context"
	"time"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/statemachine"
	"kingoacquire/internal/storage"
)

// monitorDownloadDelay is the fixed self-enqueue interval; there is no
// in-process wait loop, per spec.md §4.7.
const monitorDownloadDelay = 10 * time.Second

// MonitorDownload polls the download client once and either advances the
// request, fails it, or re-enqueues itself.
func (d *Deps) MonitorDownload(ctx context.Context, p MonitorDownloadPayload) (MonitorDownloadResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
	}
	if req == nil || req.Status.Terminal() || req.Status == storage.StatusCancelled {
		return MonitorDownloadResult{}, nil
	}

	client, err := d.Clients.DownloadClientFor(protocolFor(p.DownloadClient), p.DownloadClient)
	if err != nil {
		return MonitorDownloadResult{}, apperr.NewWithMessage("monitor_download", apperr.KindTerminalConfig, err, "download client not configured")
	}

	path, state, progressPct, _, err := client.GetDownload(ctx, p.DownloadClientID)
	if err != nil {
		return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
	}

	progress := statemachine.ClampProgress(req.Progress, int(progressPct), req.Status)
	if err := d.Requests.UpdateProgress(req.ID, progress); err != nil {
		return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
	}
	if progress%5 == 0 || progress < 5 {
		logger.Log.Debug().Str("requestId", req.ID).Int("progress", progress).Msg("download progress")
	}

	switch state {
	case "completed", "seeding":
		if err := d.DownloadHistory.MarkCompleted(p.DownloadHistoryID, path); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		if _, err := d.Transitioner.Transition(req, storage.StatusAwaitingImport); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		organizePayload := OrganizeFilesPayload{RequestID: req.ID, AudiobookID: req.AudiobookID, DownloadPath: path}
		if _, err := d.Enqueue(ctx, "organize_files", req.ID, organizePayload, broker.EnqueueOptions{}); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		return MonitorDownloadResult{Outcome: "completed"}, nil

	case "error", "failed", "missingFiles":
		if err := d.DownloadHistory.UpdateStatus(p.DownloadHistoryID, "failed", "download client reported failure"); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		if _, err := d.Transitioner.TransitionWithError(req, storage.StatusFailed, "download client reported failure"); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		if audiobook, err := d.Audiobooks.GetByID(req.AudiobookID); err == nil && audiobook != nil {
			d.notifyRequestError(ctx, req, audiobook.Title, audiobook.Author, "download client reported failure")
		}
		return MonitorDownloadResult{Outcome: "failed"}, apperr.NewWithMessage("monitor_download", apperr.KindTerminalRequest, apperr.ErrDownloadFailed, "download client reported failure")

	default:
		if _, err := d.Enqueue(ctx, "monitor_download", req.ID, p, broker.EnqueueOptions{Delay: monitorDownloadDelay}); err != nil {
			return MonitorDownloadResult{}, apperr.WrapAs("monitor_download", apperr.KindRetryableTransient, err)
		}
		return MonitorDownloadResult{Outcome: "in-progress"}, nil
	}
}

// protocolFor maps the DownloadHistory.downloadClient column to the
// protocol DownloadClientFor dispatches on.
func protocolFor(downloadClient string) string {
	switch downloadClient {
	case "sabnzbd":
		return "usenet"
	default:
		return "torrent"
	}
}
