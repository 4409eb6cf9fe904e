package processor

import (
	"context"
	"encoding/json"
	"strings"

	"kingoacquire/internal/broker"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/ratelimit"
	"kingoacquire/internal/storage"
)

type indexerConfigRow struct {
	ID         string `json:"id"`
	RSSEnabled bool   `json:"rssEnabled"`
}

// MonitorRSSFeeds fetches combined RSS from rss-enabled indexers and weak
// fuzzy-matches each item against requests still awaiting_search, per
// spec.md §4.12.
func (d *Deps) MonitorRSSFeeds(ctx context.Context, p RecurringPayload) (MonitorRSSFeedsResult, error) {
	raw, ok, err := d.Configuration.Get("prowlarr_indexers")
	if err != nil {
		return MonitorRSSFeedsResult{}, apperr.WrapAs("monitor_rss_feeds", apperr.KindRetryableTransient, err)
	}
	if !ok || raw == "" {
		return MonitorRSSFeedsResult{Skipped: true}, nil
	}
	var rows []indexerConfigRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return MonitorRSSFeedsResult{Skipped: true}, nil
	}
	var enabled []string
	for _, r := range rows {
		if r.RSSEnabled {
			enabled = append(enabled, r.ID)
		}
	}
	if len(enabled) == 0 {
		return MonitorRSSFeedsResult{Skipped: true}, nil
	}

	aggregator, err := d.Clients.IndexerAggregator()
	if err != nil {
		return MonitorRSSFeedsResult{}, apperr.NewWithMessage("monitor_rss_feeds", apperr.KindTerminalConfig, err, "no indexer aggregator configured")
	}
	if err := ratelimit.IndexerSearchLimiter.Wait(ctx); err != nil {
		return MonitorRSSFeedsResult{}, apperr.WrapAs("monitor_rss_feeds", apperr.KindRetryableTransient, err)
	}
	items, err := aggregator.FetchRSSFeeds(ctx, enabled)
	if err != nil {
		return MonitorRSSFeedsResult{}, apperr.WrapAs("monitor_rss_feeds", apperr.KindRetryableTransient, err)
	}
	if len(items) == 0 {
		return MonitorRSSFeedsResult{Matched: 0}, nil
	}

	requests, err := d.Requests.ListByStatus(storage.StatusAwaitingSearch)
	if err != nil {
		return MonitorRSSFeedsResult{}, apperr.WrapAs("monitor_rss_feeds", apperr.KindRetryableTransient, err)
	}
	if len(requests) > 100 {
		requests = requests[:100]
	}

	matched := 0
	for _, req := range requests {
		audiobook, err := d.Audiobooks.GetByID(req.AudiobookID)
		if err != nil || audiobook == nil {
			continue
		}
		for _, item := range items {
			if rssFuzzyMatch(item.Title, audiobook.Title, audiobook.Author) {
				payload := SearchIndexersPayload{
					RequestID: req.ID,
					Audiobook: PayloadAudiobook{ID: audiobook.ID, Title: audiobook.Title, Author: audiobook.Author, ASIN: audiobook.AudibleASIN},
				}
				if _, err := d.Enqueue(ctx, "search_indexers", req.ID, payload, broker.EnqueueOptions{}); err == nil {
					matched++
				}
				break
			}
		}
	}
	return MonitorRSSFeedsResult{Matched: matched}, nil
}

// rssFuzzyMatch is the weak match rule of spec.md §4.12: the item title
// must contain at least one >=3-char author word, and at least two of the
// first three >=3-char title words.
func rssFuzzyMatch(itemTitle, title, author string) bool {
	itemWords := wordsAtLeast3(itemTitle)
	itemSet := make(map[string]bool, len(itemWords))
	for _, w := range itemWords {
		itemSet[w] = true
	}

	authorWords := wordsAtLeast3(author)
	authorMatched := false
	for _, w := range authorWords {
		if itemSet[w] {
			authorMatched = true
			break
		}
	}
	if !authorMatched {
		return false
	}

	titleWords := wordsAtLeast3(title)
	if len(titleWords) > 3 {
		titleWords = titleWords[:3]
	}
	titleMatches := 0
	for _, w := range titleWords {
		if itemSet[w] {
			titleMatches++
		}
	}
	return titleMatches >= 2
}

func wordsAtLeast3(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()[]{}")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
