package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/storage"
)

func seedDownloadingRequest(t *testing.T, deps *Deps) (*storage.Request, *storage.DownloadHistory) {
	t.Helper()
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusDownloading)

	history := &storage.DownloadHistory{RequestID: req.ID, Selected: true, DownloadClient: "qbittorrent"}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}
	return req, history
}

func TestMonitorDownloadCompletedAdvancesToOrganize(t *testing.T) {
	deps, fb := newTestDeps(t)
	req, history := seedDownloadingRequest(t, deps)

	fakeClient := fakeTorrentClient{status: clients.TorrentStatus{SavePath: "/downloads/dune", State: "completed", ProgressPct: 100}}
	deps.Clients.RegisterTorrentClient("qbittorrent", fakeClient)

	result, err := deps.MonitorDownload(context.Background(), MonitorDownloadPayload{
		RequestID: req.ID, DownloadHistoryID: history.ID, DownloadClientID: "torrent-1", DownloadClient: "qbittorrent",
	})
	if err != nil {
		t.Fatalf("MonitorDownload() error = %v", err)
	}
	if result.Outcome != "completed" {
		t.Fatalf("result.Outcome = %q, want completed", result.Outcome)
	}

	updated, err := deps.Requests.GetByID(req.ID)
	if err != nil {
		t.Fatalf("Requests.GetByID() error = %v", err)
	}
	if updated.Status != storage.StatusAwaitingImport {
		t.Fatalf("status = %q, want awaiting_import", updated.Status)
	}
	if got := fb.types(); len(got) != 1 || got[0] != "organize_files" {
		t.Fatalf("enqueued = %v, want [organize_files]", got)
	}
}

func TestMonitorDownloadFailureTransitionsToFailed(t *testing.T) {
	deps, fb := newTestDeps(t)
	req, history := seedDownloadingRequest(t, deps)

	fakeClient := fakeTorrentClient{status: clients.TorrentStatus{State: "error"}}
	deps.Clients.RegisterTorrentClient("qbittorrent", fakeClient)

	result, err := deps.MonitorDownload(context.Background(), MonitorDownloadPayload{
		RequestID: req.ID, DownloadHistoryID: history.ID, DownloadClientID: "torrent-1", DownloadClient: "qbittorrent",
	})
	if err == nil {
		t.Fatalf("MonitorDownload() error = nil, want a terminal error reported for a failed download")
	}
	if result.Outcome != "failed" {
		t.Fatalf("result.Outcome = %q, want failed", result.Outcome)
	}

	updated, err := deps.Requests.GetByID(req.ID)
	if err != nil {
		t.Fatalf("Requests.GetByID() error = %v", err)
	}
	if updated.Status != storage.StatusFailed {
		t.Fatalf("status = %q, want failed", updated.Status)
	}
	if len(fb.enqueued) != 1 || fb.enqueued[0].jobType != "notify" {
		t.Fatalf("enqueued = %v, want a single notify job", fb.enqueued)
	}
}

func TestMonitorDownloadInProgressReEnqueuesItself(t *testing.T) {
	deps, fb := newTestDeps(t)
	req, history := seedDownloadingRequest(t, deps)

	fakeClient := fakeTorrentClient{status: clients.TorrentStatus{State: "downloading", ProgressPct: 40}}
	deps.Clients.RegisterTorrentClient("qbittorrent", fakeClient)

	result, err := deps.MonitorDownload(context.Background(), MonitorDownloadPayload{
		RequestID: req.ID, DownloadHistoryID: history.ID, DownloadClientID: "torrent-1", DownloadClient: "qbittorrent",
	})
	if err != nil {
		t.Fatalf("MonitorDownload() error = %v", err)
	}
	if result.Outcome != "in-progress" {
		t.Fatalf("result.Outcome = %q, want in-progress", result.Outcome)
	}
	if got := fb.types(); len(got) != 1 || got[0] != "monitor_download" {
		t.Fatalf("enqueued = %v, want a self re-enqueue", got)
	}

	updated, err := deps.Requests.GetByID(req.ID)
	if err != nil {
		t.Fatalf("Requests.GetByID() error = %v", err)
	}
	if updated.Status != storage.StatusDownloading {
		t.Fatalf("status = %q, want downloading unchanged", updated.Status)
	}
}

// fakeTorrentClient returns a fixed status regardless of which id is asked for.
type fakeTorrentClient struct {
	status clients.TorrentStatus
}

func (f fakeTorrentClient) AddTorrent(ctx context.Context, url, category string) (string, error) {
	return "torrent-1", nil
}
func (f fakeTorrentClient) GetTorrent(ctx context.Context, id string) (clients.TorrentStatus, error) {
	return f.status, nil
}
func (f fakeTorrentClient) DeleteTorrent(ctx context.Context, id string, withData bool) error {
	return nil
}
