package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"modelscanner/internal/config"
	"modelscanner/internal/queue"
	"modelscanner/internal/stage"
	"modelscanner/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{
		"MODELSCANNER_STORAGE_ACCESS_KEY",
		"MODELSCANNER_STORAGE_SECRET_KEY",
		"MODELSCANNER_STORAGE_SERVICE_URL",
		"MODELSCANNER_DATABASE_URL",
		"MODELSCANNER_API_TOKENS",
		"MODELSCANNER_WORKERS",
	} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) openStore(t *testing.T) *queue.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

func TestCLIEnqueueAndQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enqueue", "https://example.com/a.safetensors", "--callback", "https://example.com/cb", "--tasks", "hash", "--low"}, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "Queued process job 1 (low)") {
		t.Fatalf("unexpected enqueue output: %q", out)
	}

	store := env.openStore(t)
	job, err := store.GetByID(context.Background(), 1)
	if err != nil || job == nil {
		t.Fatalf("GetByID: job=%v err=%v", job, err)
	}
	if job.Tasks != stage.KindHash || job.Priority != queue.PriorityLow || job.CallbackURL != "https://example.com/cb" {
		t.Fatalf("unexpected job %+v", job)
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "https://example.com/a.safetensors") || !strings.Contains(out, "Pending") {
		t.Fatalf("queue list missing job: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "Pending") || !strings.Contains(out, "Total") {
		t.Fatalf("unexpected queue status: %q", out)
	}

	if _, _, err := runCLI(t, []string{"enqueue", "https://example.com/b", "--tasks", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected invalid tasks to fail")
	}
	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected invalid status filter to fail")
	}
}

func TestCLIMaintenanceCommandsQueueJobs(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, args := range [][]string{{"cleanup"}, {"purge-temp"}, {"delete", "7/model/x.bin"}} {
		if _, _, err := runCLI(t, args, env.configPath); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	store := env.openStore(t)
	jobs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	want := []queue.Kind{queue.KindCleanup, queue.KindPurgeTemp, queue.KindDelete}
	for i, job := range jobs {
		if job.Kind != want[i] {
			t.Fatalf("job %d: expected kind %s, got %s", i, want[i], job.Kind)
		}
	}
	if jobs[2].ObjectKey != "7/model/x.bin" {
		t.Fatalf("unexpected delete key %q", jobs[2].ObjectKey)
	}
}

func TestCLIQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.openStore(t)
	ctx := context.Background()

	job := testsupport.EnqueueProcess(t, store, "https://example.com/fail.bin", queue.PriorityNormal)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.Fail(ctx, job.ID, "boom", false, 0); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	if !strings.Contains(out, "Retried 1 failed jobs") {
		t.Fatalf("unexpected retry output: %q", out)
	}
	updated, _ := store.GetByID(ctx, job.ID)
	if updated.Status != queue.StatusPending || updated.Attempts != 0 {
		t.Fatalf("expected pending with reset attempts, got %s/%d", updated.Status, updated.Attempts)
	}

	if _, _, err := runCLI(t, []string{"queue", "clear", "--completed", "--failed"}, env.configPath); err == nil {
		t.Fatal("expected conflicting flags to fail")
	}
	out, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Cleared 1 queue jobs") {
		t.Fatalf("unexpected clear output: %q", out)
	}
}

func TestCLIHashSkipsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	testsupport.WriteFile(t, path, 4096)

	out, _, err := runCLI(t, []string{"hash", path, "--config", filepath.Join(t.TempDir(), "missing", "config.toml")}, "")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	for _, name := range []string{"SHA256", "Blake3", "CRC32"} {
		if !strings.Contains(out, name) {
			t.Fatalf("hash output missing %s: %q", name, out)
		}
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || strings.Contains(out, "Warning") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestCLITempListAndSweep(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.TempDir, 0o755); err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	stale := filepath.Join(env.cfg.Paths.TempDir, "stale.bin")
	fresh := filepath.Join(env.cfg.Paths.TempDir, "fresh.bin")
	testsupport.WriteFile(t, stale, 128)
	testsupport.WriteFile(t, fresh, 128)
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := runCLI(t, []string{"temp", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("temp list: %v", err)
	}
	if !strings.Contains(out, "stale.bin") || !strings.Contains(out, "2 entries") {
		t.Fatalf("unexpected temp list output: %q", out)
	}

	out, _, err = runCLI(t, []string{"temp", "sweep", "--max-age", "24h"}, env.configPath)
	if err != nil {
		t.Fatalf("temp sweep: %v", err)
	}
	if !strings.Contains(out, "Removed 1 entries") {
		t.Fatalf("unexpected sweep output: %q", out)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected stale entry to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh entry should survive: %v", err)
	}
}

func TestCLIConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.API.Tokens = []string{"very-secret-token"}
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, secret := range []string{"test-secret", "test-access", "very-secret-token"} {
		if strings.Contains(out, secret) {
			t.Fatalf("config show leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "upload_bucket") || !strings.Contains(out, "r2.test") {
		t.Fatalf("expected bucket in output: %s", out)
	}
}
