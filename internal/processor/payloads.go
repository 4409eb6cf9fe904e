package processor

// PayloadAudiobook is the audiobook reference embedded in several payloads.
type PayloadAudiobook struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	ASIN   string `json:"asin,omitempty"`
}

// SearchIndexersPayload is search_indexers' input shape.
type SearchIndexersPayload struct {
	RequestID string           `json:"requestId"`
	Audiobook PayloadAudiobook `json:"audiobook"`
}

// SearchIndexersResult is what search_indexers returns to the Job Store.
type SearchIndexersResult struct {
	Selected       bool   `json:"selected"`
	IndexerName    string `json:"indexerName,omitempty"`
	CandidatesSeen int    `json:"candidatesSeen"`
}

// TorrentRef describes the chosen candidate handed off to download_torrent.
type TorrentRef struct {
	IndexerName string `json:"indexerName"`
	Priority    int    `json:"priority"`
	DownloadURL string `json:"downloadUrl"`
	Protocol    string `json:"protocol"` // torrent, usenet
	Category    string `json:"category"`
}

// DownloadTorrentPayload is download_torrent's input shape.
type DownloadTorrentPayload struct {
	RequestID string           `json:"requestId"`
	Audiobook PayloadAudiobook `json:"audiobook"`
	Torrent   TorrentRef       `json:"torrent"`
}

type DownloadTorrentResult struct {
	ClientID string `json:"clientId"`
}

// StartDirectDownloadPayload is start_direct_download's input shape.
type StartDirectDownloadPayload struct {
	RequestID         string   `json:"requestId"`
	DownloadHistoryID string   `json:"downloadHistoryId"`
	MirrorPageURLs    []string `json:"mirrorPageUrls"`
	TargetFilename    string   `json:"targetFilename"`
}

type StartDirectDownloadResult struct {
	Success      bool   `json:"success"`
	DownloadPath string `json:"downloadPath,omitempty"`
}

// MonitorDownloadPayload is monitor_download's input shape.
type MonitorDownloadPayload struct {
	RequestID         string `json:"requestId"`
	DownloadHistoryID string `json:"downloadHistoryId"`
	DownloadClientID  string `json:"downloadClientId"`
	DownloadClient    string `json:"downloadClient"` // qbittorrent, sabnzbd
}

type MonitorDownloadResult struct {
	Outcome string `json:"outcome"` // completed, failed, in-progress
}

// OrganizeFilesPayload is organize_files' input shape.
type OrganizeFilesPayload struct {
	RequestID    string `json:"requestId"`
	AudiobookID  string `json:"audiobookId"`
	DownloadPath string `json:"downloadPath"`
	JobID        string `json:"jobId,omitempty"`
}

type OrganizeFilesResult struct {
	Success    bool   `json:"success"`
	FilePath   string `json:"filePath,omitempty"`
	AudioFiles int    `json:"audioFiles"`
}

// MatchLibraryPayload is match_library's input shape.
type MatchLibraryPayload struct {
	RequestID   string `json:"requestId"`
	AudiobookID string `json:"audiobookId"`
	Title       string `json:"title"`
	Author      string `json:"author"`
}

type MatchLibraryResult struct {
	Matched bool    `json:"matched"`
	Score   float64 `json:"score"`
}

// ScanLibraryPayload is scan_library's input shape.
type ScanLibraryPayload struct {
	LibraryID string `json:"libraryId,omitempty"`
	Partial   bool   `json:"partial,omitempty"`
	Path      string `json:"path,omitempty"`
}

type ScanLibraryResult struct {
	Triggered bool `json:"triggered"`
}

// RecurringPayload is the common shape for every scheduled job's payload.
type RecurringPayload struct {
	JobID          string `json:"jobId,omitempty"`
	ScheduledJobID string `json:"scheduledJobId,omitempty"`
}

type RetryMissingSearchResult struct {
	Enqueued int `json:"enqueued"`
}

type RetryFailedImportsResult struct {
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

type MonitorRSSFeedsResult struct {
	Matched int  `json:"matched"`
	Skipped bool `json:"skipped,omitempty"`
}

type CleanupSeededTorrentsResult struct {
	Cleaned      int `json:"cleaned"`
	StillSeeding int `json:"stillSeeding"`
	Unlimited    int `json:"unlimited"`
}

type RefreshMetadataCacheResult struct {
	Popular     int `json:"popular"`
	NewReleases int `json:"newReleases"`
}

type RecentlyAddedCheckResult struct {
	Enqueued int `json:"enqueued"`
}

// NotifyPayload is the notification job's input shape (not itself a
// spec-named job type, but the shape the notification-issuing processors
// use when they hand off to the NotificationBus via an enqueued job rather
// than a direct synchronous call, keeping the bus call off the hot path).
type NotifyPayload struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}
