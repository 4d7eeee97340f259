package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelscanner/internal/queue"
	"modelscanner/internal/services"
	"modelscanner/internal/stage"
	"modelscanner/internal/testsupport"
)

func TestEnqueueAndGetByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.Request{
		Kind:        queue.KindProcess,
		FileURL:     "https://example.com/model.safetensors",
		CallbackURL: "https://example.com/callback",
		Tasks:       stage.KindAll,
		Priority:    queue.PriorityLow,
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending || job.Attempts != 0 {
		t.Fatalf("unexpected new job state: %#v", job)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected job to be found")
	}
	if fetched.FileURL != "https://example.com/model.safetensors" || fetched.CallbackURL != "https://example.com/callback" {
		t.Fatalf("unexpected urls: %#v", fetched)
	}
	if fetched.Tasks != stage.KindAll || fetched.Priority != queue.PriorityLow || fetched.Kind != queue.KindProcess {
		t.Fatalf("unexpected job fields: %#v", fetched)
	}
	if fetched.CreatedAt.IsZero() || fetched.StartedAt != nil {
		t.Fatalf("unexpected timestamps: %#v", fetched)
	}

	missing, err := store.GetByID(ctx, job.ID+100)
	if err != nil {
		t.Fatalf("GetByID missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}
}

func TestEnqueueRejectsInvalidRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name string
		req  queue.Request
	}{
		{name: "process without url", req: queue.Request{Kind: queue.KindProcess}},
		{name: "delete without key", req: queue.Request{Kind: queue.KindDelete}},
		{name: "unknown kind", req: queue.Request{Kind: "explode"}},
		{name: "bad priority", req: queue.Request{Kind: queue.KindCleanup, Priority: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Enqueue(ctx, tc.req)
			if !errors.Is(err, queue.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs persisted, got %d", len(jobs))
	}
}

func TestEnqueueTrimsObjectKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.Enqueue(context.Background(), queue.Request{Kind: queue.KindDelete, ObjectKey: "/12/model/a.bin"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ObjectKey != "12/model/a.bin" {
		t.Fatalf("expected leading slash trimmed, got %q", job.ObjectKey)
	}
	if job.Target() != "12/model/a.bin" {
		t.Fatalf("unexpected target %q", job.Target())
	}
}

func TestClaimNextOrdersByPriorityThenID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	low := testsupport.EnqueueProcess(t, store, "https://example.com/low", queue.PriorityLow)
	first := testsupport.EnqueueProcess(t, store, "https://example.com/first", queue.PriorityNormal)
	second := testsupport.EnqueueProcess(t, store, "https://example.com/second", queue.PriorityNormal)

	want := []int64{first.ID, second.ID, low.ID}
	for i, id := range want {
		job, err := store.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("ClaimNext %d failed: %v", i, err)
		}
		if job == nil {
			t.Fatalf("ClaimNext %d returned nil", i)
		}
		if job.ID != id {
			t.Fatalf("claim %d: expected job %d, got %d", i, id, job.ID)
		}
		if job.Status != queue.StatusProcessing || job.Attempts != 1 {
			t.Fatalf("claim %d: unexpected state %#v", i, job)
		}
		if job.StartedAt == nil || job.HeartbeatAt == nil {
			t.Fatalf("claim %d: expected started and heartbeat timestamps", i)
		}
	}

	job, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext on empty queue failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil from empty queue, got %#v", job)
	}
}

func TestClaimNextPriorityFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.EnqueueProcess(t, store, "https://example.com/normal", queue.PriorityNormal)
	low := testsupport.EnqueueProcess(t, store, "https://example.com/low", queue.PriorityLow)

	job, err := store.ClaimNext(ctx, queue.PriorityLow)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil || job.ID != low.ID {
		t.Fatalf("expected low priority job %d, got %#v", low.ID, job)
	}

	job, err = store.ClaimNext(ctx, queue.PriorityLow)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no more low priority jobs, got %#v", job)
	}
}

func TestFailWithRetryDelaysClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.EnqueueProcess(t, store, "https://example.com/model", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	if err := store.Fail(ctx, job.ID, "storage offline", true, time.Hour); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusPending || updated.ErrorMessage != "storage offline" {
		t.Fatalf("unexpected retried job: %#v", updated)
	}
	if updated.FinishedAt != nil {
		t.Fatal("expected retried job to have no finish time")
	}
	if !updated.AvailableAt.After(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("expected available_at in the future, got %v", updated.AvailableAt)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected delayed job to be unclaimable, got %#v", claimed)
	}
}

func TestFailWithoutRetryAndComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failing := testsupport.EnqueueProcess(t, store, "https://example.com/bad", queue.PriorityNormal)
	passing := testsupport.EnqueueProcess(t, store, "https://example.com/good", queue.PriorityNormal)
	for range 2 {
		if _, err := store.ClaimNext(ctx); err != nil {
			t.Fatalf("ClaimNext failed: %v", err)
		}
	}

	if err := store.Fail(ctx, failing.ID, "bad input", false, 0); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if err := store.Complete(ctx, passing.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	failed, err := store.GetByID(ctx, failing.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.FinishedAt == nil || failed.HeartbeatAt != nil {
		t.Fatalf("unexpected failed job: %#v", failed)
	}

	done, err := store.GetByID(ctx, passing.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if done.Status != queue.StatusCompleted || done.FinishedAt == nil || done.ErrorMessage != "" {
		t.Fatalf("unexpected completed job: %#v", done)
	}

	failedJobs, err := store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failedJobs) != 1 || failedJobs[0].ID != failing.ID {
		t.Fatalf("unexpected failed list: %#v", failedJobs)
	}
}

func TestHeartbeatAndReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.EnqueueProcess(t, store, "https://example.com/model", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected fresh heartbeat to survive, reclaimed %d", n)
	}

	n, err = store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}
	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusPending || updated.HeartbeatAt != nil {
		t.Fatalf("unexpected reclaimed job: %#v", updated)
	}
	if updated.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", updated.Attempts)
	}
}

func TestResetProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	testsupport.EnqueueProcess(t, store, "https://example.com/b", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	n, err := store.ResetProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetProcessing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset job, got %d", n)
	}
	processing, err := store.List(ctx, queue.StatusProcessing)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(processing) != 0 {
		t.Fatalf("expected no processing jobs, got %d", len(processing))
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	second := testsupport.EnqueueProcess(t, store, "https://example.com/b", queue.PriorityNormal)
	for _, job := range []*queue.Job{first, second} {
		if _, err := store.ClaimNext(ctx); err != nil {
			t.Fatalf("ClaimNext failed: %v", err)
		}
		if err := store.Fail(ctx, job.ID, "boom", false, 0); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
	}

	n, err := store.RetryFailed(ctx, first.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried job, got %d", n)
	}
	retried, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retried.Status != queue.StatusPending || retried.Attempts != 0 || retried.ErrorMessage != "" {
		t.Fatalf("unexpected retried job: %#v", retried)
	}

	n, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed all failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected remaining failed job retried, got %d", n)
	}
}

func TestClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	claimed := testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	testsupport.EnqueueProcess(t, store, "https://example.com/b", queue.PriorityNormal)
	failed := testsupport.EnqueueProcess(t, store, "https://example.com/c", queue.PriorityNormal)
	if err := store.Fail(ctx, failed.ID, "boom", false, 0); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	n, err := store.Clear(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 failed job cleared, got %d", n)
	}

	n, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear all failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected pending job cleared, got %d", n)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != claimed.ID {
		t.Fatalf("expected processing job to survive clear, got %#v", remaining)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.Complete(ctx, done.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	testsupport.EnqueueProcess(t, store, "https://example.com/b", queue.PriorityNormal)
	testsupport.EnqueueProcess(t, store, "https://example.com/c", queue.PriorityLow)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusPending] != 2 || stats[queue.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 2 || health.Completed != 1 || health.Failed != 0 {
		t.Fatalf("unexpected health: %#v", health)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestPruneFinished(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	testsupport.EnqueueProcess(t, store, "https://example.com/b", queue.PriorityNormal)

	n, err := store.PruneFinished(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneFinished failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned job, got %d", n)
	}
}

func TestReopenKeepsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	jobs, err := reopened.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job to survive reopen, got %d", len(jobs))
	}
}

func TestFailureStatus(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "import", "upload", "storage offline", errors.New("dial tcp"))
	validation := services.Wrap(services.ErrValidation, "pipeline", "download", "bad scheme", nil)

	cases := []struct {
		name     string
		err      error
		attempts int
		want     queue.Status
	}{
		{name: "transient with attempts left", err: transient, attempts: 1, want: queue.StatusPending},
		{name: "transient exhausted", err: transient, attempts: 3, want: queue.StatusFailed},
		{name: "validation", err: validation, attempts: 1, want: queue.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := queue.FailureStatus(tc.err, tc.attempts, 3); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if st, ok := queue.ParseStatus(" Failed "); !ok || st != queue.StatusFailed {
		t.Fatalf("ParseStatus: got %q %v", st, ok)
	}
	if _, ok := queue.ParseStatus("stuck"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if k, ok := queue.ParseKind("PURGE_TEMP"); !ok || k != queue.KindPurgeTemp {
		t.Fatalf("ParseKind: got %q %v", k, ok)
	}
	if queue.PriorityLow.String() != "low" || queue.PriorityNormal.String() != "default" {
		t.Fatal("unexpected priority names")
	}
}

func TestReleaseReturnsAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.EnqueueProcess(t, store, "https://example.com/a", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.Release(ctx, job.ID, queue.DaemonStopReason, 0); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	released, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if released.Status != queue.StatusPending || released.Attempts != 0 {
		t.Fatalf("unexpected released job: %#v", released)
	}
	if released.ErrorMessage != queue.DaemonStopReason {
		t.Fatalf("expected stop reason recorded, got %q", released.ErrorMessage)
	}

	again, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if again == nil || again.ID != job.ID || again.Attempts != 1 {
		t.Fatalf("expected released job to be claimable with attempt 1, got %#v", again)
	}
}
