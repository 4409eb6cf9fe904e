package processor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"kingoacquire/internal/broker"
	"kingoacquire/internal/coverart"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/statemachine"
	"kingoacquire/internal/storage"
	"kingoacquire/internal/validate"
)

var audioExtensions = map[string]bool{
	".m4b": true, ".m4a": true, ".mp3": true, ".mp4": true, ".aa": true, ".aax": true,
}

var coverArtPattern = regexp.MustCompile(`(?i)^(cover|folder|art)\.(jpe?g|png)$`)

const coverDownloadTimeout = 30 * time.Second

const defaultDirectoryTemplate = "{author}/{title} {asin}"

// OrganizeFiles moves a completed download's audio files and cover art into
// the media library layout, per spec.md §4.8's seven-step contract.
func (d *Deps) OrganizeFiles(ctx context.Context, p OrganizeFilesPayload) (OrganizeFilesResult, error) {
	req, err := d.Requests.GetByID(p.RequestID)
	if err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	if req == nil {
		return OrganizeFilesResult{}, nil
	}
	// Already organized (re-run on the same successful output is a no-op).
	if req.Status == storage.StatusDownloaded || req.Status == storage.StatusCompleted {
		return OrganizeFilesResult{Success: true}, nil
	}
	if req.Status != storage.StatusAwaitingImport {
		return OrganizeFilesResult{}, nil
	}

	// Step 1: transition to processing, progress=100.
	progress := statemachine.ClampProgress(req.Progress, 100, storage.StatusProcessing)
	if _, err := d.Transitioner.Transition(req, storage.StatusProcessing); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	if err := d.Requests.UpdateProgress(req.ID, progress); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}

	audiobook, err := d.Audiobooks.GetByID(p.AudiobookID)
	if err != nil || audiobook == nil {
		return d.organizeFailed(ctx, req, "", "", "audiobook record missing")
	}
	title, author := audiobook.Title, audiobook.Author

	// Step 2: resolve release year.
	if audiobook.Year == 0 {
		if year, ok := d.metadataYearFor(ctx, audiobook.AudibleASIN); ok {
			audiobook.Year = year
			_ = d.Audiobooks.UpdateYear(audiobook.ID, year)
		}
	}

	// Step 3: render the target directory from a template.
	template, _, err := d.Configuration.Get("audiobook_path_template")
	if err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	if template == "" {
		template = defaultDirectoryTemplate
	}
	relDir := renderDirectoryTemplate(template, audiobook)

	mediaDir, _, err := d.Configuration.Get("media_dir")
	if err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	targetDir := filepath.Join(mediaDir, relDir)

	// Step 4: walk the download path for audio files and cover art.
	audioFiles, coverArt, walkErr := scanDownloadPath(p.DownloadPath)
	if walkErr != nil {
		return d.retryableOrganizeFailure(ctx, req, title, author, walkErr)
	}
	if len(audioFiles) == 0 {
		return d.retryableOrganizeFailure(ctx, req, title, author, apperr.NewWithMessage("organize_files", apperr.KindRetryableImport, apperr.ErrNotFound, "zero audio files found"))
	}

	// Step 5: move files.
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return d.retryableOrganizeFailure(ctx, req, title, author, err)
	}
	for _, src := range audioFiles {
		dst := filepath.Join(targetDir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return d.retryableOrganizeFailure(ctx, req, title, author, err)
		}
	}
	if coverArt != "" {
		if err := moveFile(coverArt, filepath.Join(targetDir, "cover.jpg")); err != nil {
			return d.retryableOrganizeFailure(ctx, req, title, author, err)
		}
	} else if audiobook.CoverArtURL != "" {
		_ = coverart.NewClient(coverDownloadTimeout).Download(audiobook.CoverArtURL, filepath.Join(targetDir, "cover.jpg"))
	}

	// Step 7: success.
	if err := d.Audiobooks.UpdateFilePath(audiobook.ID, targetDir); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	if _, err := d.Transitioner.Transition(req, storage.StatusDownloaded); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}

	if d.triggerScanAfterImportEnabled() {
		if _, err := d.Enqueue(ctx, "scan_library", req.ID, ScanLibraryPayload{Partial: true, Path: targetDir}, broker.EnqueueOptions{}); err != nil {
			return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
		}
	}
	if _, err := d.Enqueue(ctx, "match_library", req.ID, MatchLibraryPayload{
		RequestID: req.ID, AudiobookID: audiobook.ID, Title: audiobook.Title, Author: audiobook.Author,
	}, broker.EnqueueOptions{}); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}

	return OrganizeFilesResult{Success: true, FilePath: targetDir, AudioFiles: len(audioFiles)}, nil
}

// retryableOrganizeFailure implements step 6: zero-audio-files and
// ENOENT/EACCES/EPERM filesystem errors are retryable at the Request level
// via importAttempts, never at the broker level.
func (d *Deps) retryableOrganizeFailure(ctx context.Context, req *storage.Request, title, author string, cause error) (OrganizeFilesResult, error) {
	if !isRetryableImportError(cause) {
		return d.organizeFailed(ctx, req, title, author, cause.Error())
	}

	if err := d.Requests.IncrementImportAttempts(req.ID); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	req.ImportAttempts++

	if statemachine.CanWarn(req.ImportAttempts, req.MaxImportRetries) {
		if _, err := d.Transitioner.TransitionWithError(req, storage.StatusWarn, cause.Error()); err != nil {
			return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
		}
		d.notifyRequestError(ctx, req, title, author, cause.Error())
		return OrganizeFilesResult{}, nil
	}

	if _, err := d.Transitioner.Transition(req, storage.StatusAwaitingImport); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	return OrganizeFilesResult{}, nil
}

// organizeFailed handles the "all other errors" branch of step 6: a
// non-retryable failure moves the request straight to failed.
func (d *Deps) organizeFailed(ctx context.Context, req *storage.Request, title, author, message string) (OrganizeFilesResult, error) {
	if _, err := d.Transitioner.TransitionWithError(req, storage.StatusFailed, message); err != nil {
		return OrganizeFilesResult{}, apperr.WrapAs("organize_files", apperr.KindRetryableTransient, err)
	}
	d.notifyRequestError(ctx, req, title, author, message)
	return OrganizeFilesResult{}, nil
}

var filesystemRetryablePattern = regexp.MustCompile(`(?i)enoent|eacces|eperm|no such file or directory`)

func isRetryableImportError(err error) bool {
	if err == nil {
		return false
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) && ae.Kind == apperr.KindRetryableImport {
		return true
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return true
	}
	return filesystemRetryablePattern.MatchString(err.Error())
}

// scanDownloadPath walks dir for known audio extensions and a cover-art
// file, per spec.md §4.8 step 4.
func scanDownloadPath(dir string) (audioFiles []string, coverArt string, err error) {
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if audioExtensions[ext] {
			audioFiles = append(audioFiles, path)
			return nil
		}
		if coverArt == "" && coverArtPattern.MatchString(strings.ToLower(filepath.Base(path))) {
			coverArt = path
		}
		return nil
	})
	return audioFiles, coverArt, err
}

// moveFile renames src to dst, falling back to copy+unlink when rename
// fails across filesystem boundaries.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// renderDirectoryTemplate expands {author}/{title}/{asin}/{year}/{series}/
// {seriesPart}/{narrator} tokens with sanitized path components.
func renderDirectoryTemplate(template string, a *storage.Audiobook) string {
	replacer := strings.NewReplacer(
		"{author}", validate.PathComponent(a.Author),
		"{title}", validate.PathComponent(a.Title),
		"{asin}", validate.PathComponent(a.AudibleASIN),
		"{year}", validate.PathComponent(yearString(a.Year)),
		"{series}", validate.PathComponent(a.Series),
		"{seriesPart}", validate.PathComponent(a.SeriesPart),
		"{narrator}", validate.PathComponent(a.Narrator),
	)
	rendered := replacer.Replace(template)
	parts := strings.Split(rendered, "/")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return filepath.Join(parts...)
}

func yearString(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}

// metadataYearFor looks up a cached release year for asin via the metadata
// provider, per spec.md §4.8 step 2.
func (d *Deps) metadataYearFor(ctx context.Context, asin string) (int, bool) {
	if asin == "" {
		return 0, false
	}
	provider, err := d.Clients.MetadataProvider()
	if err != nil {
		return 0, false
	}
	item, err := provider.GetByASIN(ctx, asin)
	if err != nil || item.Year == 0 {
		return 0, false
	}
	return item.Year, true
}

// triggerScanAfterImportEnabled checks every "*.trigger_scan_after_import"
// configuration flag, per spec.md §4.8 step 7.
func (d *Deps) triggerScanAfterImportEnabled() bool {
	all, err := d.Configuration.All()
	if err != nil {
		return false
	}
	for key, value := range all {
		if strings.HasSuffix(key, ".trigger_scan_after_import") && value == "true" {
			return true
		}
	}
	return false
}
