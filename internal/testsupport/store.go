package testsupport

import (
	"context"
	"testing"

	"modelscanner/internal/config"
	"modelscanner/internal/queue"
	"modelscanner/internal/stage"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// EnqueueProcess inserts a process job for fileURL with default tasks.
func EnqueueProcess(t testing.TB, store *queue.Store, fileURL string, priority queue.Priority) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queue.Request{
		Kind:     queue.KindProcess,
		FileURL:  fileURL,
		Tasks:    stage.KindDefault,
		Priority: priority,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
