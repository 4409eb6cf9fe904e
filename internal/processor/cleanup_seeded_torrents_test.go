package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/storage"
)

func seedCompletedTorrentRequest(t *testing.T, deps *Deps, indexerName string, seedingTimeSec int64) {
	t.Helper()
	audiobook := mustCreateAudiobook(t, deps, &storage.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	req := mustCreateRequest(t, deps, audiobook.ID, storage.StatusCompleted)

	history := &storage.DownloadHistory{
		RequestID: req.ID, Selected: true, DownloadClient: "qbittorrent",
		IndexerName: indexerName, DownloadClientID: "torrent-1",
	}
	if err := deps.DownloadHistory.Create(history); err != nil {
		t.Fatalf("DownloadHistory.Create() error = %v", err)
	}
	if err := deps.DownloadHistory.Select(req.ID, history.ID); err != nil {
		t.Fatalf("DownloadHistory.Select() error = %v", err)
	}

	deps.Clients.RegisterTorrentClient(indexerName, fakeTorrentClient{
		status: clients.TorrentStatus{State: "seeding", SeedingTimeSec: seedingTimeSec},
	})
}

func TestCleanupSeededTorrentsDeletesPastMinimum(t *testing.T) {
	deps, _ := newTestDeps(t)
	if err := deps.Configuration.Set("prowlarr_indexers", `[{"name":"idx1","seedingTimeMinutes":60}]`); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}
	seedCompletedTorrentRequest(t, deps, "idx1", 3601)

	result, err := deps.CleanupSeededTorrents(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("CleanupSeededTorrents() error = %v", err)
	}
	if result.Cleaned != 1 {
		t.Fatalf("result.Cleaned = %d, want 1", result.Cleaned)
	}
}

func TestCleanupSeededTorrentsStillSeedingIsLeftAlone(t *testing.T) {
	deps, _ := newTestDeps(t)
	if err := deps.Configuration.Set("prowlarr_indexers", `[{"name":"idx1","seedingTimeMinutes":60}]`); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}
	seedCompletedTorrentRequest(t, deps, "idx1", 10)

	result, err := deps.CleanupSeededTorrents(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("CleanupSeededTorrents() error = %v", err)
	}
	if result.StillSeeding != 1 || result.Cleaned != 0 {
		t.Fatalf("result = %+v, want stillSeeding=1 cleaned=0", result)
	}
}

func TestCleanupSeededTorrentsZeroMinutesMeansNeverClean(t *testing.T) {
	deps, _ := newTestDeps(t)
	if err := deps.Configuration.Set("prowlarr_indexers", `[{"name":"idx1","seedingTimeMinutes":0}]`); err != nil {
		t.Fatalf("Configuration.Set() error = %v", err)
	}
	seedCompletedTorrentRequest(t, deps, "idx1", 999999)

	result, err := deps.CleanupSeededTorrents(context.Background(), RecurringPayload{})
	if err != nil {
		t.Fatalf("CleanupSeededTorrents() error = %v", err)
	}
	if result.Unlimited != 1 || result.Cleaned != 0 {
		t.Fatalf("result = %+v, want unlimited=1 cleaned=0 (seedingTimeMinutes=0 means never clean)", result)
	}
}
