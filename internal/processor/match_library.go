package processor

import (
	"context"

	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/storage"
)

// libraryMatchThreshold is the minimum combined score to treat a library
// item as the same title, per spec.md §4.9.
const libraryMatchThreshold = 0.70

// MatchLibrary fuzzy-matches the audiobook against items the media server
// already knows about. A match or a miss both end in Completed — file
// placement, not library visibility, is the source of truth (the resolved
// Open Question in spec.md §9).
func (d *Deps) MatchLibrary(ctx context.Context, p MatchLibraryPayload) (MatchLibraryResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return MatchLibraryResult{}, apperr.WrapAs("match_library", apperr.KindRetryableTransient, err)
	}
	if req == nil || req.Status != storage.StatusDownloaded {
		return MatchLibraryResult{}, nil
	}

	library, err := d.Clients.MediaLibrary()
	if err != nil {
		// Degraded-success: no library configured, no way to confirm
		// visibility, but files are already placed — still complete.
		if _, terr := d.Transitioner.Transition(req, storage.StatusCompleted); terr != nil {
			return MatchLibraryResult{}, apperr.WrapAs("match_library", apperr.KindRetryableTransient, terr)
		}
		return MatchLibraryResult{Matched: false}, nil
	}

	libraryID, _, _ := d.Configuration.Get("plex_library_id")
	items, err := library.SearchLibrary(ctx, libraryID, p.Title)
	if err != nil {
		// A matching error never escalates — it degrades gracefully.
		if _, terr := d.Transitioner.Transition(req, storage.StatusCompleted); terr != nil {
			return MatchLibraryResult{}, apperr.WrapAs("match_library", apperr.KindRetryableTransient, terr)
		}
		return MatchLibraryResult{Matched: false}, nil
	}

	var bestScore float64
	var bestGUID, bestRatingKey string
	for _, item := range items {
		score := 0.7*similarity(p.Title, item.Title) + 0.3*similarity(p.Author, item.Author)
		if score > bestScore {
			bestScore = score
			bestGUID = item.GUID
			bestRatingKey = item.RatingKey
		}
	}

	if bestScore >= libraryMatchThreshold {
		if err := d.Audiobooks.UpdateLibraryMatch(p.AudiobookID, bestGUID, bestRatingKey); err != nil {
			return MatchLibraryResult{}, apperr.WrapAs("match_library", apperr.KindRetryableTransient, err)
		}
	}

	if _, err := d.Transitioner.Transition(req, storage.StatusCompleted); err != nil {
		return MatchLibraryResult{}, apperr.WrapAs("match_library", apperr.KindRetryableTransient, err)
	}

	return MatchLibraryResult{Matched: bestScore >= libraryMatchThreshold, Score: bestScore}, nil
}
