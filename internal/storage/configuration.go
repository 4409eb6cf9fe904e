package storage

import (
	"database/sql"
	"time"
)

// ConfigurationRepository is the runtime-mutable half of the Configuration
// entity: dotted keys (e.g. "audiobookshelf.libraryId") layered on top of
// the JSON bootstrap file in internal/config. At startup the worker copies
// each non-empty file value in only for keys not already set here, so a key
// set here overrides the file value, also across restarts.
type ConfigurationRepository struct{ db *DB }

func NewConfigurationRepository(db *DB) *ConfigurationRepository { return &ConfigurationRepository{db: db} }

// Get returns "", false if key has no runtime override.
func (r *ConfigurationRepository) Get(key string) (string, bool, error) {
	var value string
	err := r.db.conn.QueryRow(`SELECT value FROM configuration WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes (or overwrites) a runtime override for key.
func (r *ConfigurationRepository) Set(key, value string) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO configuration (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}

// Delete removes a runtime override; Get then reports key as unset until the
// next startup copies the file value in again.
func (r *ConfigurationRepository) Delete(key string) error {
	_, err := r.db.conn.Exec(`DELETE FROM configuration WHERE key = ?`, key)
	return err
}

// All returns every stored key and value as a flat map.
func (r *ConfigurationRepository) All() (map[string]string, error) {
	rows, err := r.db.conn.Query(`SELECT key, value FROM configuration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
