// Package clients defines the abstract external collaborators processors
// depend on: indexer search, torrent/usenet clients, the media server, the
// metadata provider, the e-book scraper, and the notification bus. No
// concrete networked implementation lives here — only the interfaces,
// a circuit-breaker decorator, and (under fake/) in-memory stand-ins for
// tests.
package clients

import "context"

// Candidate is one indexer search result.
type Candidate struct {
	IndexerName string
	Title       string
	DownloadURL string
	Protocol    string // torrent, usenet
	Category    string
	Priority    int
	SeedersPeer int
	SizeBytes   int64
}

// RSSItem is one entry from a combined indexer RSS feed.
type RSSItem struct {
	IndexerName string
	Title       string
	DownloadURL string
}

// IndexerAggregator searches configured indexers and fetches their RSS feeds.
type IndexerAggregator interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
	FetchRSSFeeds(ctx context.Context, indexerIDs []string) ([]RSSItem, error)
}

// TorrentStatus is a snapshot of a torrent's state in the client.
type TorrentStatus struct {
	SavePath       string
	Name           string
	State          string // downloading, seeding, error, ...
	ProgressPct    float64
	SeedingTimeSec int64
}

// TorrentClient manages torrents in a BitTorrent client (qBittorrent, etc.).
type TorrentClient interface {
	AddTorrent(ctx context.Context, url string, category string) (clientID string, err error)
	GetTorrent(ctx context.Context, clientID string) (TorrentStatus, error)
	DeleteTorrent(ctx context.Context, clientID string, withData bool) error
}

// NZBStatus is a snapshot of a usenet download's state.
type NZBStatus struct {
	DownloadPath string
	State        string
}

// UsenetClient manages NZBs in a usenet download client (SABnzbd, etc.).
type UsenetClient interface {
	AddNZB(ctx context.Context, url string) (nzbID string, err error)
	GetNZB(ctx context.Context, nzbID string) (NZBStatus, error)
}

// LibraryItem is a title as seen by the media server.
type LibraryItem struct {
	GUID      string
	RatingKey string
	Title     string
	Author    string
}

// MediaLibrary is the audiobook/e-book media server (Plex, Audiobookshelf).
type MediaLibrary interface {
	TriggerLibraryScan(ctx context.Context, libraryID string) error
	SearchLibrary(ctx context.Context, libraryID, query string) ([]LibraryItem, error)
	RecentlyAdded(ctx context.Context, libraryID string) ([]LibraryItem, error)
}

// MetadataItem is one title from the metadata provider's catalog.
type MetadataItem struct {
	ASIN        string
	Title       string
	Author      string
	Narrator    string
	Series      string
	SeriesPart  string
	Year        int
	CoverArtURL string
}

// MetadataProvider supplies catalog metadata (Audible, etc.).
type MetadataProvider interface {
	GetPopular(ctx context.Context, n int) ([]MetadataItem, error)
	GetNewReleases(ctx context.Context, n int) ([]MetadataItem, error)
	GetByASIN(ctx context.Context, asin string) (MetadataItem, error)
}

// ExtractedDownload is a resolved direct-download target.
type ExtractedDownload struct {
	URL    string
	Format string
}

// EbookScraper resolves a mirror page into a direct download URL.
type EbookScraper interface {
	ExtractDownloadURL(ctx context.Context, pageURL, baseURL, preferredFormat, bypassURL string) (*ExtractedDownload, error)
}

// NotificationBus publishes best-effort, fire-and-forget notifications.
type NotificationBus interface {
	Publish(ctx context.Context, kind string, payload map[string]any) error
}

// DownloadClient is the common capability retry_failed_imports needs
// regardless of whether a request's download went through a torrent or
// usenet client, so that call site doesn't branch by protocol beyond a
// single lookup. See spec.md §9 "Dynamic-dispatch of external clients".
type DownloadClient interface {
	GetDownload(ctx context.Context, id string) (downloadPath string, state string, progressPct float64, seedingTimeSec int64, err error)
}
