// Package fake provides in-memory implementations of the internal/clients
// interfaces for use in tests, since no networked implementation is in
// scope for this core.
package fake

import (
	"context"
	"fmt"
	"sync"

	"kingoacquire/internal/clients"
)

// IndexerAggregator returns whatever Candidates/RSSItems were queued,
// regardless of query, and records every call for assertions.
type IndexerAggregator struct {
	mu         sync.Mutex
	Candidates []clients.Candidate
	RSSItems   []clients.RSSItem
	Err        error
	Searches   []string
}

func (f *IndexerAggregator) Search(ctx context.Context, query string) ([]clients.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, query)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Candidates, nil
}

func (f *IndexerAggregator) FetchRSSFeeds(ctx context.Context, indexerIDs []string) ([]clients.RSSItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.RSSItems, nil
}

// TorrentClient keeps added torrents in memory keyed by a monotonic id.
type TorrentClient struct {
	mu      sync.Mutex
	next    int
	added   map[string]string // id -> url
	Status  map[string]clients.TorrentStatus
	AddErr  error
	Deleted map[string]bool
}

func NewTorrentClient() *TorrentClient {
	return &TorrentClient{
		added:   make(map[string]string),
		Status:  make(map[string]clients.TorrentStatus),
		Deleted: make(map[string]bool),
	}
}

func (f *TorrentClient) AddTorrent(ctx context.Context, url, category string) (string, error) {
	if f.AddErr != nil {
		return "", f.AddErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("torrent-%d", f.next)
	f.added[id] = url
	return id, nil
}

func (f *TorrentClient) GetTorrent(ctx context.Context, id string) (clients.TorrentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.Status[id]
	if !ok {
		return clients.TorrentStatus{}, fmt.Errorf("torrent %s not found", id)
	}
	return status, nil
}

func (f *TorrentClient) DeleteTorrent(ctx context.Context, id string, withData bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted[id] = true
	return nil
}

// UsenetClient mirrors TorrentClient's shape for NZBs.
type UsenetClient struct {
	mu     sync.Mutex
	next   int
	Status map[string]clients.NZBStatus
	AddErr error
}

func NewUsenetClient() *UsenetClient {
	return &UsenetClient{Status: make(map[string]clients.NZBStatus)}
}

func (f *UsenetClient) AddNZB(ctx context.Context, url string) (string, error) {
	if f.AddErr != nil {
		return "", f.AddErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("nzb-%d", f.next), nil
}

func (f *UsenetClient) GetNZB(ctx context.Context, id string) (clients.NZBStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.Status[id]
	if !ok {
		return clients.NZBStatus{}, fmt.Errorf("nzb %s not found", id)
	}
	return status, nil
}

// MediaLibrary records triggered scans and returns queued search results.
type MediaLibrary struct {
	mu            sync.Mutex
	ScannedLibs   []string
	SearchResults []clients.LibraryItem
	Recent        []clients.LibraryItem
	Err           error
}

func (f *MediaLibrary) TriggerLibraryScan(ctx context.Context, libraryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScannedLibs = append(f.ScannedLibs, libraryID)
	return f.Err
}

func (f *MediaLibrary) SearchLibrary(ctx context.Context, libraryID, query string) ([]clients.LibraryItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.SearchResults, nil
}

func (f *MediaLibrary) RecentlyAdded(ctx context.Context, libraryID string) ([]clients.LibraryItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Recent, nil
}

// MetadataProvider returns queued catalog items.
type MetadataProvider struct {
	Popular     []clients.MetadataItem
	NewReleases []clients.MetadataItem
	ByASIN      map[string]clients.MetadataItem
	Err         error
}

func NewMetadataProvider() *MetadataProvider {
	return &MetadataProvider{ByASIN: make(map[string]clients.MetadataItem)}
}

func (f *MetadataProvider) GetPopular(ctx context.Context, n int) ([]clients.MetadataItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if n < len(f.Popular) {
		return f.Popular[:n], nil
	}
	return f.Popular, nil
}

func (f *MetadataProvider) GetNewReleases(ctx context.Context, n int) ([]clients.MetadataItem, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if n < len(f.NewReleases) {
		return f.NewReleases[:n], nil
	}
	return f.NewReleases, nil
}

func (f *MetadataProvider) GetByASIN(ctx context.Context, asin string) (clients.MetadataItem, error) {
	if f.Err != nil {
		return clients.MetadataItem{}, f.Err
	}
	item, ok := f.ByASIN[asin]
	if !ok {
		return clients.MetadataItem{}, fmt.Errorf("asin %s not found", asin)
	}
	return item, nil
}

// EbookScraper returns a queued extraction result.
type EbookScraper struct {
	Result *clients.ExtractedDownload
	Err    error
}

func (f *EbookScraper) ExtractDownloadURL(ctx context.Context, pageURL, baseURL, preferredFormat, bypassURL string) (*clients.ExtractedDownload, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

// NotificationBus records every published notification.
type NotificationBus struct {
	mu        sync.Mutex
	Published []Notification
}

type Notification struct {
	Kind    string
	Payload map[string]any
}

func (f *NotificationBus) Publish(ctx context.Context, kind string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, Notification{Kind: kind, Payload: payload})
	return nil
}
