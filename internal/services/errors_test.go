package services_test

import (
	"errors"
	"strings"
	"testing"

	"modelscanner/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "scan", "clamscan", "failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	if got := err.Error(); got != "external tool error: scan: clamscan: failed: boom" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, " ", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "enqueue", "parse url", "bad", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "storage", "init", "missing key", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "import", "upload", "503", errors.New("io")), true},
		{"timeout", services.Wrap(services.ErrTimeout, "scan", "docker", "deadline", nil), true},
		{"plain", errors.New("unclassified"), true},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
