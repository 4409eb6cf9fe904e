package storage

import "testing"

func TestJobRepository_CreateAndGetByBrokerJobID(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)

	j := &Job{BrokerJobID: "broker-1", Type: "search_indexers", Payload: `{"requestId":"r1"}`, MaxAttempts: 3}
	if err := repo.Create(j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if j.Status != JobPending {
		t.Errorf("Status = %q, want %q", j.Status, JobPending)
	}

	got, err := repo.GetByBrokerJobID("broker-1")
	if err != nil {
		t.Fatalf("GetByBrokerJobID() error = %v", err)
	}
	if got == nil || got.Type != "search_indexers" {
		t.Errorf("GetByBrokerJobID() = %+v, want type search_indexers", got)
	}
}

func TestJobRepository_MarkActiveIncrementsAttempts(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)

	j := &Job{BrokerJobID: "broker-2", Type: "monitor_download", Payload: "{}"}
	if err := repo.Create(j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkActive("broker-2"); err != nil {
		t.Fatalf("MarkActive() error = %v", err)
	}

	got, _ := repo.GetByBrokerJobID("broker-2")
	if got.Status != JobActive {
		t.Errorf("Status = %q, want %q", got.Status, JobActive)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should be set after MarkActive()")
	}
}

func TestJobRepository_MarkCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)

	j := &Job{BrokerJobID: "broker-3", Type: "organize_files", Payload: "{}"}
	if err := repo.Create(j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkCompleted("broker-3", `{"ok":true}`); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	got, _ := repo.GetByBrokerJobID("broker-3")
	if got.Status != JobCompleted {
		t.Errorf("Status = %q, want %q", got.Status, JobCompleted)
	}
	if got.Result != `{"ok":true}` {
		t.Errorf("Result = %q, want {\"ok\":true}", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set after MarkCompleted()")
	}
}

func TestJobRepository_MarkFailedThenListByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)

	j := &Job{BrokerJobID: "broker-4", Type: "download_torrent", Payload: "{}"}
	if err := repo.Create(j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkFailed("broker-4", JobStuck, "max retries exceeded", "stack trace here"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	stuck, err := repo.ListByStatus(JobStuck)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("ListByStatus(JobStuck) returned %d jobs, want 1", len(stuck))
	}
	if stuck[0].ErrorMessage != "max retries exceeded" {
		t.Errorf("ErrorMessage = %q, want max retries exceeded", stuck[0].ErrorMessage)
	}
}
