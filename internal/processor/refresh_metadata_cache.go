package processor

import (
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"kingoacquire/internal/clients"
	"kingoacquire/internal/coverart"
	apperr "kingoacquire/internal/errors"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/storage"
)

const refreshMetadataCount = 20
const thumbnailTimeout = 15 * time.Second
const thumbnailMaxDimension = 300

// RefreshMetadataCache repopulates the popular/new-release cache from the
// metadata provider, caching cover thumbnails locally, per spec.md §4.14.
// Flags are cleared before repopulating so a title dropped from this
// round's results loses its stale flag.
func (d *Deps) RefreshMetadataCache(ctx context.Context, p RecurringPayload) (RefreshMetadataCacheResult, error) {
	provider, err := d.Clients.MetadataProvider()
	if err != nil {
		return RefreshMetadataCacheResult{}, apperr.NewWithMessage("refresh_metadata_cache", apperr.KindTerminalConfig, err, "no metadata provider configured")
	}

	if err := d.Audiobooks.ClearPopularFlags(); err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}

	popular, err := provider.GetPopular(ctx, refreshMetadataCount)
	if err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}
	popularIDs, err := d.upsertMetadataItems(ctx, popular)
	if err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}
	if err := d.Audiobooks.MarkPopular(popularIDs); err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}

	newReleases, err := provider.GetNewReleases(ctx, refreshMetadataCount)
	if err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}
	newReleaseIDs, err := d.upsertMetadataItems(ctx, newReleases)
	if err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}
	if err := d.Audiobooks.MarkNewRelease(newReleaseIDs); err != nil {
		return RefreshMetadataCacheResult{}, apperr.WrapAs("refresh_metadata_cache", apperr.KindRetryableTransient, err)
	}

	d.gcThumbnails(append(popularIDs, newReleaseIDs...))

	return RefreshMetadataCacheResult{Popular: len(popularIDs), NewReleases: len(newReleaseIDs)}, nil
}

// upsertMetadataItems finds or creates an Audiobook row for each catalog
// item (keyed by ASIN) and caches its cover thumbnail locally.
func (d *Deps) upsertMetadataItems(ctx context.Context, items []clients.MetadataItem) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		existing, err := d.Audiobooks.GetByASIN(item.ASIN)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}

		a := &storage.Audiobook{
			Title: item.Title, Author: item.Author, Narrator: item.Narrator,
			AudibleASIN: item.ASIN, Series: item.Series, SeriesPart: item.SeriesPart,
			Year: item.Year, CoverArtURL: item.CoverArtURL,
		}
		if err := d.Audiobooks.Create(a); err != nil {
			return nil, err
		}
		if item.CoverArtURL != "" {
			d.cacheThumbnail(a.ID, item.CoverArtURL)
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (d *Deps) thumbnailCacheDir() string {
	dir, _, _ := d.Configuration.Get("thumbnail_cache_dir")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "kingoacquire-thumbnails")
	}
	return dir
}

// cacheThumbnail downloads the cover art and writes a downscaled JPEG
// thumbnail, so the media library listing doesn't serve full-resolution
// covers for a simple catalog browse.
func (d *Deps) cacheThumbnail(audiobookID, url string) {
	dir := d.thumbnailCacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	original := filepath.Join(dir, audiobookID+".original")
	defer os.Remove(original)
	if err := coverart.NewClient(thumbnailTimeout).Download(url, original); err != nil {
		logger.Log.Warn().Err(err).Str("audiobookId", audiobookID).Msg("cover art download failed")
		return
	}

	dst := filepath.Join(dir, audiobookID+".jpg")
	if err := writeThumbnail(original, dst); err != nil {
		logger.Log.Warn().Err(err).Str("audiobookId", audiobookID).Msg("thumbnail encode failed")
	}
}

// writeThumbnail decodes src (jpeg/png/webp) and writes a JPEG thumbnail no
// larger than thumbnailMaxDimension on its longest edge to dst.
func writeThumbnail(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scale := 1.0
	if w > h && w > thumbnailMaxDimension {
		scale = float64(thumbnailMaxDimension) / float64(w)
	} else if h >= w && h > thumbnailMaxDimension {
		scale = float64(thumbnailMaxDimension) / float64(h)
	}
	dstW, dstH := int(float64(w)*scale), int(float64(h)*scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	thumb := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	return jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85})
}

// gcThumbnails removes any cached thumbnail not referenced by this round's
// live cache rows.
func (d *Deps) gcThumbnails(liveIDs []string) {
	dir := d.thumbnailCacheDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id+".jpg"] = true
	}
	for _, entry := range entries {
		if !live[entry.Name()] {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
