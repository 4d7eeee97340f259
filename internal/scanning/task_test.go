package scanning_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"modelscanner/internal/logging"
	"modelscanner/internal/result"
	"modelscanner/internal/scanning"
	"modelscanner/internal/services"
)

const picklescanReport = `scanned file
Global imports in /data/model.in: {('collections', 'OrderedDict'), ('torch._utils', '_rebuild_tensor_v2'), ('torch', 'FloatStorage')}
Global imports in /data/model.in/archive/data.pkl: {('builtins', 'eval')}
/data/model.in: dangerous import 'builtins eval' FOUND
----------- SCAN SUMMARY -----------
Scanned files: 1
Infected files: 1
Dangerous globals: 1`

type fakeRunner struct {
	calls   [][]string
	outputs map[string]string
	codes   map[string]int
	errs    map[string]error
}

func (f *fakeRunner) Run(_ context.Context, command []string, _ string) (int, string, error) {
	f.calls = append(f.calls, command)
	name := command[0]
	return f.codes[name], f.outputs[name], f.errs[name]
}

func TestParseGlobalImports(t *testing.T) {
	got := scanning.ParseGlobalImports(picklescanReport).Values()
	want := []string{
		"'builtins', 'eval'",
		"'collections', 'OrderedDict'",
		"'torch', 'FloatStorage'",
		"'torch._utils', '_rebuild_tensor_v2'",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ParseGlobalImports = %q, want %q", got, want)
	}
}

func TestParseDangerousImports(t *testing.T) {
	got := scanning.ParseDangerousImports(picklescanReport).Values()
	if len(got) != 1 || got[0] != "builtins eval" {
		t.Fatalf("ParseDangerousImports = %q", got)
	}
	if n := len(scanning.ParseDangerousImports("nothing here")); n != 0 {
		t.Fatalf("expected no matches, got %d", n)
	}
}

func TestPickleFileRunsBothScanners(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"clamscan": "OK", "picklescan": picklescanReport},
		codes:   map[string]int{"picklescan": 1},
	}
	task := scanning.NewTask(runner, logging.NewNop())
	res := result.New("https://r2/upload/model.ckpt")

	cont, err := task.Process(context.Background(), "/tmp/model.ckpt", res)
	if err != nil || !cont {
		t.Fatalf("Process = %v, %v", cont, err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 scanner runs, got %v", runner.calls)
	}
	if got := strings.Join(runner.calls[1], " "); got != "picklescan -p /data/model.in -l DEBUG" {
		t.Fatalf("unexpected picklescan command %q", got)
	}
	if res.PicklescanExitCode != 1 || res.ClamscanOutput != "OK" {
		t.Fatalf("unexpected verdicts %+v", res)
	}
	if !res.PicklescanDangerousImports.Has("builtins eval") {
		t.Fatalf("expected dangerous import recorded, got %v", res.PicklescanDangerousImports.Values())
	}
	if len(res.PicklescanGlobalImports) != 4 {
		t.Fatalf("expected 4 global imports, got %v", res.PicklescanGlobalImports.Values())
	}
}

func TestSafetensorsSkipsPicklescan(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"clamscan": "clean"}}
	task := scanning.NewTask(runner, logging.NewNop())
	res := result.New("https://r2/upload/model.safetensors")

	if _, err := task.Process(context.Background(), "/tmp/model.safetensors", res); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "clamscan" {
		t.Fatalf("expected only clamscan, got %v", runner.calls)
	}
	if res.PicklescanExitCode != 0 || res.PicklescanOutput != scanning.SafetensorsVerdict {
		t.Fatalf("unexpected picklescan verdict %d %q", res.PicklescanExitCode, res.PicklescanOutput)
	}
}

func TestRunnerFailureIsRecorded(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"clamscan": services.Wrap(services.ErrExternalTool, "docker", "run", "Unable to start docker", errors.New("exec: not found")),
	}}
	task := scanning.NewTask(runner, logging.NewNop())
	res := result.New("https://r2/upload/model.safetensors")

	cont, err := task.Process(context.Background(), "/tmp/model.safetensors", res)
	if err != nil || !cont {
		t.Fatalf("Process = %v, %v; want true, nil", cont, err)
	}
	if res.ClamscanExitCode != -1 || !strings.Contains(res.ClamscanOutput, "not found") {
		t.Fatalf("expected failure recorded, got %d %q", res.ClamscanExitCode, res.ClamscanOutput)
	}
}

func TestCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{errs: map[string]error{"clamscan": context.Canceled}}
	task := scanning.NewTask(runner, logging.NewNop())

	_, err := task.Process(ctx, "/tmp/model.ckpt", result.New("u"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
