package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/clients/fake"
	"kingoacquire/internal/storage"
)

func TestDownloadTorrentDispatchesByProtocol(t *testing.T) {
	deps, fb := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingDownload)

	history := &storage.DownloadHistory{RequestID: req.ID, Selected: true}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}
	if err := deps.DownloadHistory.Select(req.ID, history.ID); err != nil {
		t.Fatalf("DownloadHistory.Select() error = %v", err)
	}

	usenet := fake.NewUsenetClient()
	deps.Clients.RegisterUsenetClient("indexer1", usenet)

	result, err := deps.DownloadTorrent(context.Background(), DownloadTorrentPayload{
		RequestID: req.ID,
		Torrent:   TorrentRef{IndexerName: "indexer1", DownloadURL: "nzb://x", Protocol: "usenet"},
	})
	if err != nil {
		t.Fatalf("DownloadTorrent() error = %v", err)
	}
	if result.ClientID == "" {
		t.Fatalf("result.ClientID = %q, want non-empty", result.ClientID)
	}

	updated, err := deps.Requests.GetByID(req.ID)
	if err != nil {
		t.Fatalf("Requests.GetByID() error = %v", err)
	}
	if updated.Status != storage.StatusDownloading {
		t.Fatalf("status = %q, want downloading", updated.Status)
	}
	if got := fb.types(); len(got) != 1 || got[0] != "monitor_download" {
		t.Fatalf("enqueued = %v, want [monitor_download]", got)
	}
}

func TestDownloadTorrentNoSelectedCandidateFails(t *testing.T) {
	deps, _ := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingDownload)

	if _, err := deps.DownloadTorrent(context.Background(), DownloadTorrentPayload{
		RequestID: req.ID,
		Torrent:   TorrentRef{IndexerName: "indexer1", DownloadURL: "magnet:x", Protocol: "torrent"},
	}); err == nil {
		t.Fatalf("DownloadTorrent() error = nil, want an error when no candidate was selected")
	}
}

func TestStartDirectDownloadFallsBackToNextMirror(t *testing.T) {
	deps, fb := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingDownload)

	history := &storage.DownloadHistory{RequestID: req.ID, Selected: true}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ebook contents"))
	}))
	t.Cleanup(server.Close)

	downloadDir := t.TempDir()
	if err := deps.Configuration.Set("download_dir", downloadDir); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}

	scraper := &firstMirrorFailsScraper{result: &clients.ExtractedDownload{URL: server.URL, Format: "epub"}}
	deps.Clients.RegisterEbookScraper(scraper)

	result, err := deps.StartDirectDownload(context.Background(), StartDirectDownloadPayload{
		RequestID:         req.ID,
		DownloadHistoryID: history.ID,
		MirrorPageURLs:    []string{"https://mirror-a.example/book", "https://mirror-b.example/book"},
		TargetFilename:    "dune.epub",
	})
	if err != nil {
		t.Fatalf("StartDirectDownload() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result.Success = false, want true")
	}
	if len(scraper.pages) != 2 || scraper.pages[1] != "https://mirror-b.example/book" {
		t.Fatalf("scraper pages = %v, want mirror-a then mirror-b", scraper.pages)
	}
	if _, err := os.Stat(filepath.Join(downloadDir, "dune.epub")); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
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

func TestStartDirectDownloadAllMirrorsFailedFailsRequest(t *testing.T) {
	deps, fb := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingDownload)

	history := &storage.DownloadHistory{RequestID: req.ID, Selected: true}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}

	if err := deps.Configuration.Set("download_dir", t.TempDir()); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}

	scraper := &fake.EbookScraper{Err: errScraperUnavailable}
	deps.Clients.RegisterEbookScraper(scraper)

	if _, err := deps.StartDirectDownload(context.Background(), StartDirectDownloadPayload{
		RequestID:         req.ID,
		DownloadHistoryID: history.ID,
		MirrorPageURLs:    []string{"https://mirror-a.example/book"},
		TargetFilename:    "dune.epub",
	}); err == nil {
		t.Fatalf("StartDirectDownload() error = nil, want an error when every mirror fails")
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

// firstMirrorFailsScraper resolves nothing for the first mirror page it is
// asked about and result for every later one, recording the pages it saw.
type firstMirrorFailsScraper struct {
	result *clients.ExtractedDownload
	pages  []string
}

func (s *firstMirrorFailsScraper) ExtractDownloadURL(ctx context.Context, pageURL, baseURL, preferredFormat, bypassURL string) (*clients.ExtractedDownload, error) {
	s.pages = append(s.pages, pageURL)
	if len(s.pages) == 1 {
		return nil, nil
	}
	return s.result, nil
}

var errScraperUnavailable = &scraperError{"scraper unavailable"}

type scraperError struct{ msg string }

func (e *scraperError) Error() string { return e.msg }
