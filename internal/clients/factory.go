package clients

import (
	"context"
	"fmt"
)

// Factory resolves the configured implementation for each external
// collaborator. Processors depend on the Factory, never on a concrete
// client package, so swapping qBittorrent for transmission (say) is a
// registration change, not a call-site change.
type Factory struct {
	indexers IndexerAggregator
	torrent  map[string]TorrentClient // keyed by download client name
	usenet   map[string]UsenetClient
	library  MediaLibrary
	metadata MetadataProvider
	scraper  EbookScraper
	notifier NotificationBus
}

func NewFactory() *Factory {
	return &Factory{
		torrent: make(map[string]TorrentClient),
		usenet:  make(map[string]UsenetClient),
	}
}

func (f *Factory) RegisterIndexerAggregator(c IndexerAggregator) { f.indexers = c }
func (f *Factory) RegisterMediaLibrary(c MediaLibrary)           { f.library = c }
func (f *Factory) RegisterMetadataProvider(c MetadataProvider)   { f.metadata = c }
func (f *Factory) RegisterEbookScraper(c EbookScraper)           { f.scraper = c }
func (f *Factory) RegisterNotificationBus(c NotificationBus)     { f.notifier = c }
func (f *Factory) RegisterTorrentClient(name string, c TorrentClient) { f.torrent[name] = c }
func (f *Factory) RegisterUsenetClient(name string, c UsenetClient)    { f.usenet[name] = c }

func (f *Factory) IndexerAggregator() (IndexerAggregator, error) {
	if f.indexers == nil {
		return nil, fmt.Errorf("no indexer aggregator registered")
	}
	return f.indexers, nil
}

func (f *Factory) MediaLibrary() (MediaLibrary, error) {
	if f.library == nil {
		return nil, fmt.Errorf("no media library registered")
	}
	return f.library, nil
}

func (f *Factory) MetadataProvider() (MetadataProvider, error) {
	if f.metadata == nil {
		return nil, fmt.Errorf("no metadata provider registered")
	}
	return f.metadata, nil
}

func (f *Factory) EbookScraper() (EbookScraper, error) {
	if f.scraper == nil {
		return nil, fmt.Errorf("no ebook scraper registered")
	}
	return f.scraper, nil
}

func (f *Factory) NotificationBus() (NotificationBus, error) {
	if f.notifier == nil {
		return nil, fmt.Errorf("no notification bus registered")
	}
	return f.notifier, nil
}

func (f *Factory) TorrentClient(name string) (TorrentClient, error) {
	c, ok := f.torrent[name]
	if !ok {
		return nil, fmt.Errorf("no torrent client registered for %q", name)
	}
	return c, nil
}

func (f *Factory) UsenetClient(name string) (UsenetClient, error) {
	c, ok := f.usenet[name]
	if !ok {
		return nil, fmt.Errorf("no usenet client registered for %q", name)
	}
	return c, nil
}

// DownloadClientFor dispatches on protocol ("torrent" or "usenet") to
// produce the common DownloadClient capability retry_failed_imports and
// monitor_download use, regardless of which concrete client handled the
// download. See spec.md §9 "Dynamic-dispatch of external clients".
func (f *Factory) DownloadClientFor(protocol, name string) (DownloadClient, error) {
	switch protocol {
	case "torrent":
		c, err := f.TorrentClient(name)
		if err != nil {
			return nil, err
		}
		return torrentDownloadAdapter{c}, nil
	case "usenet":
		c, err := f.UsenetClient(name)
		if err != nil {
			return nil, err
		}
		return usenetDownloadAdapter{c}, nil
	default:
		return nil, fmt.Errorf("unsupported download protocol %q", protocol)
	}
}

type torrentDownloadAdapter struct{ c TorrentClient }

func (a torrentDownloadAdapter) GetDownload(ctx context.Context, id string) (string, string, float64, int64, error) {
	status, err := a.c.GetTorrent(ctx, id)
	if err != nil {
		return "", "", 0, 0, err
	}
	return status.SavePath, status.State, status.ProgressPct, status.SeedingTimeSec, nil
}

type usenetDownloadAdapter struct{ c UsenetClient }

func (a usenetDownloadAdapter) GetDownload(ctx context.Context, id string) (string, string, float64, int64, error) {
	status, err := a.c.GetNZB(ctx, id)
	if err != nil {
		return "", "", 0, 0, err
	}
	return status.DownloadPath, status.State, 0, 0, nil
}
