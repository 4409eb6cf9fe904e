package clients_test

import (
	"context"
	"testing"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/clients/fake"
)

func TestFactory_ResolvesRegisteredClients(t *testing.T) {
	f := clients.NewFactory()

	if _, err := f.IndexerAggregator(); err == nil {
		t.Error("expected error before registration")
	}

	f.RegisterIndexerAggregator(&fake.IndexerAggregator{})
	if _, err := f.IndexerAggregator(); err != nil {
		t.Errorf("IndexerAggregator() error = %v", err)
	}

	f.RegisterTorrentClient("qbittorrent", fake.NewTorrentClient())
	if _, err := f.TorrentClient("qbittorrent"); err != nil {
		t.Errorf("TorrentClient() error = %v", err)
	}
	if _, err := f.TorrentClient("transmission"); err == nil {
		t.Error("expected error for unregistered client name")
	}
}

func TestFactory_DownloadClientFor(t *testing.T) {
	f := clients.NewFactory()
	torrent := fake.NewTorrentClient()
	torrent.Status["torrent-1"] = clients.TorrentStatus{SavePath: "/downloads/book", State: "seeding", ProgressPct: 100}
	f.RegisterTorrentClient("qbittorrent", torrent)

	dc, err := f.DownloadClientFor("torrent", "qbittorrent")
	if err != nil {
		t.Fatalf("DownloadClientFor() error = %v", err)
	}
	path, state, progress, _, err := dc.GetDownload(context.Background(), "torrent-1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if path != "/downloads/book" || state != "seeding" || progress != 100 {
		t.Errorf("GetDownload() = (%q, %q, %v), want (/downloads/book, seeding, 100)", path, state, progress)
	}

	if _, err := f.DownloadClientFor("ftp", "x"); err == nil {
		t.Error("expected error for unsupported protocol")
	}
}
