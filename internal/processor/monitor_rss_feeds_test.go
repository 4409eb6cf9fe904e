package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/clients/fake"
	"kingoacquire/internal/storage"
)

func TestMonitorRSSFeedsNoConfiguredIndexersSkips(t *testing.T) {
	deps, _ := newTestDeps(t)

	result, err := deps.MonitorRSSFeeds(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("MonitorRSSFeeds() error = %v", err)
	}
	if !result.Skipped {
		t.Fatalf("result.Skipped = false, want true with no configured indexers")
	}
}

func TestMonitorRSSFeedsEmptyFeedIsNotSkipped(t *testing.T) {
	deps, _ := newTestDeps(t)
	if err := deps.Configuration.Set("prowlarr_indexers", `[{"id":"idx1","rssEnabled":true}]`); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}
	deps.Clients.RegisterIndexerAggregator(&fake.IndexerAggregator{})

	result, err := deps.MonitorRSSFeeds(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("MonitorRSSFeeds() error = %v", err)
	}
	if result.Skipped {
		t.Fatalf("result.Skipped = true, want false (indexers are configured, the feed just returned nothing)")
	}
	if result.Matched != 0 {
		t.Fatalf("result.Matched = %d, want 0", result.Matched)
	}
}

func TestMonitorRSSFeedsFuzzyMatchesAndEnqueues(t *testing.T) {
	deps, fb := newTestDeps(t)
	if err := deps.Configuration.Set("prowlarr_indexers", `[{"id":"idx1","rssEnabled":true}]`); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}
	deps.Clients.RegisterIndexerAggregator(&fake.IndexerAggregator{RSSItems: []clients.RSSItem{
		{IndexerName: "idx1", Title: "Dune Messiah Frank Herbert Audiobook"},
	}})

	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune Messiah", Author: "Frank Herbert"})
	mustCreateRequest(t, deps, audiobook.ID, storage.StatusAwaitingSearch)

	result, err := deps.MonitorRSSFeeds(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("MonitorRSSFeeds() error = %v", err)
	}
	if result.Matched != 1 {
		t.Fatalf("result.Matched = %d, want 1", result.Matched)
	}
	if got := fb.types(); len(got) != 1 || got[0] != "search_indexers" {
		t.Fatalf("enqueued = %v, want [search_indexers]", got)
	}
}
