package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelscanner/internal/logging"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("set old time: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldEntries(t *testing.T) {
	tmpDir := t.TempDir()

	oldFile := filepath.Join(tmpDir, "model.safetensors")
	if err := os.WriteFile(oldFile, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	age(t, oldFile, 3*time.Hour)

	oldDir := filepath.Join(tmpDir, "leftover")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	age(t, oldDir, 3*time.Hour)

	recent := filepath.Join(tmpDir, "in-progress.ckpt")
	if err := os.WriteFile(recent, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	for _, p := range []string{oldFile, oldDir} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("recent file should still exist")
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	tmpDir := t.TempDir()
	stale := filepath.Join(tmpDir, "stale.bin")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	age(t, stale, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, tmpDir, time.Hour, time.Hour, logging.NewNop())
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove stale file")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestListEntries(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a.bin"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	sub := filepath.Join(tmpDir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.bin"), make([]byte, 5), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	entries, err := ListEntries(tmpDir)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	sizes := map[string]int64{}
	for _, e := range entries {
		sizes[e.Name] = e.Size
	}
	if sizes["a.bin"] != 10 || sizes["sub"] != 5 {
		t.Fatalf("unexpected sizes %v", sizes)
	}

	missing, err := ListEntries(filepath.Join(tmpDir, "missing"))
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing dir, got %v %v", missing, err)
	}
}
