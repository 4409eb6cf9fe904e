package storage

import "testing"

func TestConfigurationRepository_GetMissingKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewConfigurationRepository(db)

	_, ok, err := repo.Get("audiobookshelf.libraryId")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() should report ok=false for a key with no override")
	}
}

func TestConfigurationRepository_SetAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewConfigurationRepository(db)

	if err := repo.Set("audiobookshelf.libraryId", "lib-42"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, ok, err := repo.Get("audiobookshelf.libraryId")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || value != "lib-42" {
		t.Errorf("Get() = (%q, %v), want (lib-42, true)", value, ok)
	}
}

func TestConfigurationRepository_SetOverwrites(t *testing.T) {
	db := newTestDB(t)
	repo := NewConfigurationRepository(db)

	if err := repo.Set("prowlarr.baseUrl", "http://old"); err != nil {
		t.Fatalf("first Set() error = %v", err)
	}
	if err := repo.Set("prowlarr.baseUrl", "http://new"); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	value, _, _ := repo.Get("prowlarr.baseUrl")
	if value != "http://new" {
		t.Errorf("Get() = %q, want http://new", value)
	}
}

func TestConfigurationRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewConfigurationRepository(db)

	if err := repo.Set("plex.libraryId", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Delete("plex.libraryId"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, ok, err := repo.Get("plex.libraryId")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() should report ok=false after Delete()")
	}
}

func TestConfigurationRepository_All(t *testing.T) {
	db := newTestDB(t)
	repo := NewConfigurationRepository(db)

	if err := repo.Set("a.key", "1"); err != nil {
		t.Fatalf("Set(a.key) error = %v", err)
	}
	if err := repo.Set("b.key", "2"); err != nil {
		t.Fatalf("Set(b.key) error = %v", err)
	}

	all, err := repo.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 || all["a.key"] != "1" || all["b.key"] != "2" {
		t.Errorf("All() = %v, want map[a.key:1 b.key:2]", all)
	}
}
