package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/storage"
)

func TestRetryFailedImportsUsesRecordedPathFirst(t *testing.T) {
	deps, fb := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingImport)

	history := &storage.DownloadHistory{RequestID: req.ID, Selected: true, DownloadPath: "/downloads/dune"}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}
	if err := deps.DownloadHistory.Select(req.ID, history.ID); err != nil {
		t.Fatalf("DownloadHistory.Select() error = %v", err)
	}

	result, err := deps.RetryFailedImports(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("RetryFailedImports() error = %v", err)
	}
	if result.Enqueued != 1 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want enqueued=1 skipped=0", result)
	}
	if got := fb.types(); len(got) != 1 || got[0] != "organize_files" {
		t.Fatalf("enqueued = %v, want [organize_files]", got)
	}
}

func TestRetryFailedImportsSkipsUnresolvableRequest(t *testing.T) {
	deps, fb := newTestDeps(t)
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingImport)
	// No DownloadHistory row selected at all: path cannot be resolved.

	result, err := deps.RetryFailedImports(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("RetryFailedImports() error = %v", err)
	}
	if result.Enqueued != 0 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want enqueued=0 skipped=1", result)
	}
	if len(fb.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want none", fb.enqueued)
	}
}
