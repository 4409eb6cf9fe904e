package processor

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/ratelimit"
	"kingoacquire/internal/storage"
	"kingoacquire/internal/validate"
)

// DownloadTorrent submits the selected candidate to its download client and
// starts the monitor poll loop.
func (d *Deps) DownloadTorrent(ctx context.Context, p DownloadTorrentPayload) (DownloadTorrentResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}
	if req == nil || req.Status != storage.StatusAwaitingDownload {
		return DownloadTorrentResult{}, nil
	}

	history, err := d.DownloadHistory.GetSelected(req.ID)
	if err != nil || history == nil {
		return DownloadTorrentResult{}, apperr.NewWithMessage("download_torrent", apperr.KindTerminalRequest, err, "no selected candidate")
	}

	var clientID string
	switch p.Torrent.Protocol {
	case "usenet":
		client, err := d.Clients.UsenetClient(p.Torrent.IndexerName)
		if err != nil {
			return DownloadTorrentResult{}, apperr.NewWithMessage("download_torrent", apperr.KindTerminalConfig, err, "no usenet client configured")
		}
		clientID, err = client.AddNZB(ctx, p.Torrent.DownloadURL)
		if err != nil {
			return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
		}
	default:
		client, err := d.Clients.TorrentClient(p.Torrent.IndexerName)
		if err != nil {
			return DownloadTorrentResult{}, apperr.NewWithMessage("download_torrent", apperr.KindTerminalConfig, err, "no torrent client configured")
		}
		clientID, err = client.AddTorrent(ctx, p.Torrent.DownloadURL, p.Torrent.Category)
		if err != nil {
			return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
		}
	}

	if err := d.DownloadHistory.UpdateStatus(history.ID, "downloading", ""); err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}
	if err := d.DownloadHistory.MarkStarted(history.ID); err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}
	if err := d.Requests.IncrementDownloadAttempts(req.ID); err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}
	if _, err := d.Transitioner.Transition(req, storage.StatusDownloading); err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}

	monitorPayload := MonitorDownloadPayload{
		RequestID:         req.ID,
		DownloadHistoryID: history.ID,
		DownloadClientID:  clientID,
		DownloadClient:    p.Torrent.Protocol,
	}
	if _, err := d.Enqueue(ctx, "monitor_download", req.ID, monitorPayload, broker.EnqueueOptions{Delay: 10 * time.Second}); err != nil {
		return DownloadTorrentResult{}, apperr.WrapAs("download_torrent", apperr.KindRetryableTransient, err)
	}

	return DownloadTorrentResult{ClientID: clientID}, nil
}

// directDownloadTimeout bounds each mirror attempt, per spec.md §4.6.
const directDownloadTimeout = 120 * time.Second

// StartDirectDownload iterates e-book mirror pages, resolving each through
// the scraper and streaming the first one that succeeds. While streaming,
// progress is written to the Request at most every progressFlushInterval,
// as a fixed 50% (below the 99% streaming cap); it is set to 100 on success.
func (d *Deps) StartDirectDownload(ctx context.Context, p StartDirectDownloadPayload) (StartDirectDownloadResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
	}
	if req == nil || req.Status != storage.StatusAwaitingDownload {
		return StartDirectDownloadResult{}, nil
	}

	scraper, err := d.Clients.EbookScraper()
	if err != nil {
		return StartDirectDownloadResult{}, apperr.NewWithMessage("start_direct_download", apperr.KindTerminalConfig, err, "no ebook scraper configured")
	}

	downloadDir, _, _ := d.Configuration.Get("download_dir")
	baseURL, _, _ := d.Configuration.Get("ebook_sidecar_base_url")
	preferredFormat, _, _ := d.Configuration.Get("ebook_sidecar_preferred_format")
	bypassURL, _, _ := d.Configuration.Get("ebook_sidecar_flaresolverr_url")

	if _, err := d.Transitioner.Transition(req, storage.StatusDownloading); err != nil {
		return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
	}

	targetPath := filepath.Join(downloadDir, validate.PathComponent(p.TargetFilename))

	mirrors := p.MirrorPageURLs
	if len(mirrors) > 5 {
		mirrors = mirrors[:5]
	}

	var lastErr error
	for _, pageURL := range mirrors {
		if err := ratelimit.EbookScraperLimiter.Wait(ctx); err != nil {
			return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
		}
		resolved, err := scraper.ExtractDownloadURL(ctx, pageURL, baseURL, preferredFormat, bypassURL)
		if err != nil || resolved == nil {
			lastErr = err
			continue
		}
		if err := d.streamMirror(ctx, req.ID, resolved.URL, targetPath); err != nil {
			lastErr = err
			os.Remove(targetPath)
			continue
		}

		if err := d.DownloadHistory.MarkCompleted(p.DownloadHistoryID, targetPath); err != nil {
			return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
		}
		if err := d.Requests.UpdateProgress(req.ID, 100); err != nil {
			return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
		}
		if _, err := d.Transitioner.Transition(req, storage.StatusAwaitingImport); err != nil {
			return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
		}

		organizePayload := OrganizeFilesPayload{RequestID: req.ID, AudiobookID: req.AudiobookID, DownloadPath: targetPath}
		if _, err := d.Enqueue(ctx, "organize_files", req.ID, organizePayload, broker.EnqueueOptions{}); err != nil {
			return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
		}
		return StartDirectDownloadResult{Success: true, DownloadPath: targetPath}, nil
	}

	if _, err := d.Transitioner.TransitionWithError(req, storage.StatusFailed, "all mirrors failed"); err != nil {
		return StartDirectDownloadResult{}, apperr.WrapAs("start_direct_download", apperr.KindRetryableTransient, err)
	}
	if audiobook, err := d.Audiobooks.GetByID(req.AudiobookID); err == nil && audiobook != nil {
		d.notifyRequestError(ctx, req, audiobook.Title, audiobook.Author, "all mirrors failed")
	}
	return StartDirectDownloadResult{}, apperr.NewWithMessage("start_direct_download", apperr.KindTerminalRequest, lastErr, "all mirrors failed")
}

// progressWriter counts bytes written and flushes progress to the Request
// at most every progressFlushInterval, with a pending-write flag so overlapping
// flushes never pile up more than one in-flight DB write.
type progressWriter struct {
	ctx          context.Context
	deps         *Deps
	requestID    string
	written      int64
	lastFlush    time.Time
	flushPending bool
}

const progressFlushInterval = 2 * time.Second

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.written += int64(n)

	if w.flushPending || time.Since(w.lastFlush) < progressFlushInterval {
		return n, nil
	}
	w.flushPending = true
	// 1-99%: exact percentage is unknown without a content-length, so any
	// write in progress is reported as "in motion" at 50% until the final
	// flush sets 100 on success. Capped below 100 per the streaming rule.
	if err := w.deps.Requests.UpdateProgress(w.requestID, 50); err == nil {
		w.lastFlush = time.Now()
		logger.Log.Debug().Str("requestId", w.requestID).Str("written", humanize.Bytes(uint64(w.written))).Msg("direct download progress")
	}
	w.flushPending = false
	return n, nil
}

func (d *Deps) streamMirror(ctx context.Context, requestID, url, targetPath string) error {
	ctx, cancel := context.WithTimeout(ctx, directDownloadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.WrapAs("start_direct_download.stream", apperr.KindRetryableTransient, err)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return apperr.WrapAs("start_direct_download.stream", apperr.KindRetryableTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apperr.NewWithMessage("start_direct_download.stream", apperr.KindRetryableTransient, apperr.ErrDownloadFailed, "mirror returned an error status")
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return apperr.WrapAs("start_direct_download.stream", apperr.KindRetryableTransient, err)
	}
	out, err := os.Create(targetPath)
	if err != nil {
		return apperr.WrapAs("start_direct_download.stream", apperr.KindRetryableTransient, err)
	}
	defer out.Close()

	pw := &progressWriter{ctx: ctx, deps: d, requestID: requestID, lastFlush: time.Now()}
	if _, err := io.Copy(io.MultiWriter(out, pw), resp.Body); err != nil {
		return apperr.WrapAs("start_direct_download.stream", apperr.KindRetryableTransient, err)
	}
	return nil
}
