package processor

import (
	"context"

	apperr "kingoacquire/internal/errors"
)

// ScanLibrary asks the media server to rescan, either the whole library or
// a partial path. A refusal degrades gracefully — it never fails a
// Request, since scan_library runs independently of the lifecycle it was
// triggered from (organize_files has already committed its own state by
// the time this job runs).
func (d *Deps) ScanLibrary(ctx context.Context, p ScanLibraryPayload) (ScanLibraryResult, error) {
	library, err := d.Clients.MediaLibrary()
	if err != nil {
		return ScanLibraryResult{}, apperr.NewWithMessage("scan_library", apperr.KindTerminalConfig, err, "no media library configured")
	}

	libraryID := p.LibraryID
	if libraryID == "" {
		libraryID, _, _ = d.Configuration.Get("plex_library_id")
	}

	if err := library.TriggerLibraryScan(ctx, libraryID); err != nil {
		return ScanLibraryResult{Triggered: false}, nil
	}
	return ScanLibraryResult{Triggered: true}, nil
}
