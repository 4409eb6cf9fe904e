package processor

import (
	"context"
	"testing"

	"kingoacquire/internal/broker"
	"kingoacquire/internal/clients"
	"kingoacquire/internal/storage"
)

// fakeBroker is an in-memory stand-in for broker.Broker, recording enqueued
// job types/payloads for assertions.
type fakeBroker struct {
	enqueued []enqueuedJob
}

type enqueuedJob struct {
	jobType string
	payload string
	opts    broker.EnqueueOptions
}

func (f *fakeBroker) Enqueue(ctx context.Context, jobType, payload string, opts broker.EnqueueOptions) (string, error) {
	f.enqueued = append(f.enqueued, enqueuedJob{jobType, payload, opts})
	return "job-" + jobType, nil
}
func (f *fakeBroker) RegisterRepeatable(ctx context.Context, jobType, payload, cron, key string) error {
	return nil
}
func (f *fakeBroker) UnregisterRepeatable(ctx context.Context, cron, key string) error { return nil }
func (f *fakeBroker) SetProcessor(jobType string, concurrency int, handler broker.Handler) error {
	return nil
}
func (f *fakeBroker) SetCallbacks(cb broker.Callbacks) {}
func (f *fakeBroker) Start(ctx context.Context) error  { return nil }
func (f *fakeBroker) Close() error                     { return nil }
func (f *fakeBroker) GetJob(ctx context.Context, id string) (*broker.JobRecord, error) {
	return nil, nil
}
func (f *fakeBroker) Retry(ctx context.Context, id string) error                     { return nil }
func (f *fakeBroker) Remove(ctx context.Context, id string) error                    { return nil }
func (f *fakeBroker) Pause(ctx context.Context, jobType string) error                { return nil }
func (f *fakeBroker) Resume(ctx context.Context, jobType string) error               { return nil }
func (f *fakeBroker) Counts(ctx context.Context, jobType string) (broker.Counts, error) {
	return broker.Counts{}, nil
}

func (f *fakeBroker) types() []string {
	out := make([]string, len(f.enqueued))
	for i, j := range f.enqueued {
		out[i] = j.jobType
	}
	return out
}

// newTestDeps builds a Deps backed by a real on-disk SQLite DB (in a temp
// dir) and a fresh client Factory, mirroring the teacher's table-driven test
// setup that avoids mocking the database.
func newTestDeps(t *testing.T) (*Deps, *fakeBroker) {
	t.Helper()
	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fb := &fakeBroker{}
	deps := NewDeps(db, fb, clients.NewFactory())
	return deps, fb
}

func mustCreateRequest(t *testing.T, deps *Deps, audiobookID string, status storage.RequestStatus) *storage.Request {
	t.Helper()
	req := &storage.Request{UserID: "user-1", Type: "audiobook", AudiobookID: audiobookID, Status: status}
	if err := deps.Requests.Create(req); err != nil {
		t.Fatalf("Requests.Create() error = %v", err)
	}
	if status != storage.StatusAwaitingSearch {
		if err := deps.Requests.UpdateStatus(req.ID, status); err != nil {
			t.Fatalf("Requests.UpdateStatus() error = %v", err)
		}
		req.Status = status
	}
	return req
}

func mustCreateAudiobook(t *testing.T, deps *Deps, a *storage.Audiobook) *storage.Audiobook {
	t.Helper()
	if err := deps.Audiobooks.Create(a); err != nil {
		t.Fatalf("Audiobooks.Create() error = %v", err)
	}
	return a
}
