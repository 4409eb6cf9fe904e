package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Audiobook is the descriptor a Request targets by reference: title/author
// metadata plus whatever organize_files and match_library write back once
// the request progresses.
type Audiobook struct {
	ID               string
	Title            string
	Author           string
	Narrator         string
	AudibleASIN      string
	Series           string
	SeriesPart       string
	Year             int
	CoverArtURL      string
	FilePath         string // written by organize_files on success
	LibraryGUID      string // written by match_library
	LibraryRatingKey string // written by match_library
	IsPopular        bool   // written by refresh_metadata_cache
	IsNewRelease     bool   // written by refresh_metadata_cache
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const audiobookColumns = `id, title, author, COALESCE(narrator,''), COALESCE(audible_asin,''),
	COALESCE(series,''), COALESCE(series_part,''), COALESCE(year,0), COALESCE(cover_art_url,''),
	COALESCE(file_path,''), COALESCE(library_guid,''), COALESCE(library_rating_key,''),
	is_popular, is_new_release, created_at, updated_at`

// AudiobookRepository stores Audiobook descriptors.
type AudiobookRepository struct{ db *DB }

func NewAudiobookRepository(db *DB) *AudiobookRepository { return &AudiobookRepository{db: db} }

// Create inserts a new audiobook, generating an id if absent.
func (r *AudiobookRepository) Create(a *Audiobook) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := r.db.conn.Exec(`
		INSERT INTO audiobooks (id, title, author, narrator, audible_asin, series, series_part, year,
			cover_art_url, file_path, library_guid, library_rating_key, is_popular, is_new_release, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Author, a.Narrator, a.AudibleASIN, a.Series, a.SeriesPart, a.Year,
		a.CoverArtURL, a.FilePath, a.LibraryGUID, a.LibraryRatingKey, a.IsPopular, a.IsNewRelease, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetByID returns nil, nil when no such audiobook exists.
func (r *AudiobookRepository) GetByID(id string) (*Audiobook, error) {
	row := r.db.conn.QueryRow(`SELECT `+audiobookColumns+` FROM audiobooks WHERE id = ?`, id)
	return scanAudiobook(row)
}

// GetByASIN returns nil, nil when no audiobook with that ASIN exists.
func (r *AudiobookRepository) GetByASIN(asin string) (*Audiobook, error) {
	row := r.db.conn.QueryRow(`SELECT `+audiobookColumns+` FROM audiobooks WHERE audible_asin = ?`, asin)
	return scanAudiobook(row)
}

// UpdateYear writes back a resolved release year (organize_files step 2).
func (r *AudiobookRepository) UpdateYear(id string, year int) error {
	_, err := r.db.conn.Exec(`UPDATE audiobooks SET year = ?, updated_at = ? WHERE id = ?`, year, time.Now(), id)
	return err
}

// UpdateFilePath writes the final library path (organize_files step 7).
func (r *AudiobookRepository) UpdateFilePath(id, filePath string) error {
	_, err := r.db.conn.Exec(`UPDATE audiobooks SET file_path = ?, updated_at = ? WHERE id = ?`, filePath, time.Now(), id)
	return err
}

// UpdateLibraryMatch writes the matched external-library handles (match_library).
func (r *AudiobookRepository) UpdateLibraryMatch(id, guid, ratingKey string) error {
	_, err := r.db.conn.Exec(`UPDATE audiobooks SET library_guid = ?, library_rating_key = ?, updated_at = ? WHERE id = ?`,
		guid, ratingKey, time.Now(), id)
	return err
}

// ClearPopularFlags resets isPopular/isNewRelease before refresh_metadata_cache repopulates them.
func (r *AudiobookRepository) ClearPopularFlags() error {
	_, err := r.db.conn.Exec(`UPDATE audiobooks SET is_popular = FALSE, is_new_release = FALSE`)
	return err
}

// MarkPopular sets isPopular=true for the given ids.
func (r *AudiobookRepository) MarkPopular(ids []string) error {
	return r.markFlag(ids, "is_popular")
}

// MarkNewRelease sets isNewRelease=true for the given ids.
func (r *AudiobookRepository) MarkNewRelease(ids []string) error {
	return r.markFlag(ids, "is_new_release")
}

func (r *AudiobookRepository) markFlag(ids []string, column string) error {
	for _, id := range ids {
		if _, err := r.db.conn.Exec(`UPDATE audiobooks SET `+column+` = TRUE WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudiobook(row rowScanner) (*Audiobook, error) {
	a := &Audiobook{}
	err := row.Scan(&a.ID, &a.Title, &a.Author, &a.Narrator, &a.AudibleASIN, &a.Series, &a.SeriesPart, &a.Year,
		&a.CoverArtURL, &a.FilePath, &a.LibraryGUID, &a.LibraryRatingKey, &a.IsPopular, &a.IsNewRelease,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
