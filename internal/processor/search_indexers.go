package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"kingoacquire/internal/broker"
	"kingoacquire/internal/clients"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/ratelimit"
	"kingoacquire/internal/storage"
)

// SearchIndexers resolves the indexer aggregator, ranks results, selects
// the best candidate, and hands off to the next download step. It is
// idempotent: re-entering on a request already past awaiting_search is a
// no-op success, per spec.md §5's ordering guarantee (RSS monitor and
// retry-missing-search can both enqueue this for the same request).
func (d *Deps) SearchIndexers(ctx context.Context, p SearchIndexersPayload) (SearchIndexersResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}
	if req == nil || req.Status != storage.StatusAwaitingSearch {
		return SearchIndexersResult{}, nil
	}

	aggregator, err := d.Clients.IndexerAggregator()
	if err != nil {
		return SearchIndexersResult{}, apperr.NewWithMessage("search_indexers", apperr.KindTerminalConfig, err, "no indexer aggregator configured")
	}

	if err := ratelimit.IndexerSearchLimiter.Wait(ctx); err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}
	query := p.Audiobook.Title + " " + p.Audiobook.Author
	candidates, err := aggregator.Search(ctx, query)
	if err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}
	if len(candidates) == 0 {
		// Left in awaiting_search; retry_missing_search will try again later.
		return SearchIndexersResult{Selected: false, CandidatesSeen: 0}, nil
	}

	flags, err := d.indexerFlags()
	if err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}

	ranked := rank(toRankedCandidates(candidates), flags)
	best := ranked[0]

	history := &storage.DownloadHistory{
		RequestID:   req.ID,
		Selected:    true,
		DownloadClient: best.Protocol,
		IndexerName: best.IndexerName,
		TorrentURL:  best.DownloadURL,
	}
	if err := d.DownloadHistory.Create(history); err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}
	if err := d.DownloadHistory.Select(req.ID, history.ID); err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}

	if _, err := d.Transitioner.Transition(req, storage.StatusAwaitingDownload); err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}

	if best.Protocol == "direct" {
		format, _, _ := d.Configuration.Get("ebook_sidecar_preferred_format")
		if format == "" {
			format = "epub"
		}
		payload := StartDirectDownloadPayload{
			RequestID:         req.ID,
			DownloadHistoryID: history.ID,
			MirrorPageURLs:    []string{best.DownloadURL},
			TargetFilename:    fmt.Sprintf("%s - %s.%s", p.Audiobook.Title, p.Audiobook.Author, format),
		}
		if _, err := d.Enqueue(ctx, "start_direct_download", req.ID, payload, broker.EnqueueOptions{}); err != nil {
			return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
		}
		return SearchIndexersResult{Selected: true, IndexerName: best.IndexerName, CandidatesSeen: len(candidates)}, nil
	}

	payload := DownloadTorrentPayload{
		RequestID: req.ID,
		Audiobook: p.Audiobook,
		Torrent: TorrentRef{
			IndexerName: best.IndexerName,
			Priority:    best.Seeders,
			DownloadURL: best.DownloadURL,
			Protocol:    best.Protocol,
		},
	}
	if _, err := d.Enqueue(ctx, "download_torrent", req.ID, payload, broker.EnqueueOptions{}); err != nil {
		return SearchIndexersResult{}, apperr.WrapAs("search_indexers", apperr.KindRetryableTransient, err)
	}

	return SearchIndexersResult{Selected: true, IndexerName: best.IndexerName, CandidatesSeen: len(candidates)}, nil
}

func toRankedCandidates(in []clients.Candidate) []RankedCandidate {
	return lo.Map(in, func(c clients.Candidate, _ int) RankedCandidate {
		return RankedCandidate{
			IndexerName: c.IndexerName,
			Title:       c.Title,
			DownloadURL: c.DownloadURL,
			Protocol:    c.Protocol,
			Seeders:     c.SeedersPeer,
		}
	})
}

type indexerPriorityRow struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// indexerFlags loads per-indexer ranking preference from the
// prowlarr_indexers configuration key (a JSON list).
func (d *Deps) indexerFlags() ([]FlagConfig, error) {
	raw, ok, err := d.Configuration.Get("prowlarr_indexers")
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var rows []indexerPriorityRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, nil // malformed config degrades to no preference, not a failure
	}
	return lo.Map(rows, func(r indexerPriorityRow, _ int) FlagConfig {
		return FlagConfig{IndexerName: r.Name, Priority: r.Priority}
	}), nil
}
