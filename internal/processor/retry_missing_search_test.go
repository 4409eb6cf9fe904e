package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/storage"
)

func TestRetryMissingSearchReEnqueuesEverythingAwaitingSearch(t *testing.T) {
	deps, fb := newTestDeps(t)
	a1 := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	a2 := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Hyperion", Author: "Dan Simmons"})
	mustCreateRequest(t, deps, a1.ID, storage.StatusAwaitingSearch)
	mustCreateRequest(t, deps, a2.ID, storage.StatusAwaitingSearch)
	mustCreateRequest(t, deps, a1.ID, storage.StatusCompleted) // not stuck, should be ignored

	result, err := deps.RetryMissingSearch(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("RetryMissingSearch() error = %v", err)
	}
	if result.Enqueued != 2 {
		t.Fatalf("result.Enqueued = %d, want 2", result.Enqueued)
	}
	if got := fb.types(); len(got) != 2 || got[0] != "search_indexers" || got[1] != "search_indexers" {
		t.Fatalf("enqueued = %v, want two search_indexers jobs", got)
	}
}

func TestRetryMissingSearchEmptyIsANoOp(t *testing.T) {
	deps, fb := newTestDeps(t)

	result, err := deps.RetryMissingSearch(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("RetryMissingSearch() error = %v", err)
	}
	if result.Enqueued != 0 {
		t.Fatalf("result.Enqueued = %d, want 0", result.Enqueued)
	}
	if len(fb.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want none", fb.enqueued)
	}
}
