package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const dockerProbeTimeout = 10 * time.Second

// CheckDockerDaemon asks the docker CLI for the server version. The binary
// being on PATH is not enough: scans need a reachable daemon.
func CheckDockerDaemon(ctx context.Context, binary string) Status {
	result := Status{
		Name:        "Docker daemon",
		Command:     strings.TrimSpace(binary),
		Description: "Runs the scanner and conversion container",
	}
	if result.Command == "" {
		result.Command = "docker"
	}
	path, err := exec.LookPath(result.Command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", result.Command)
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, dockerProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, path, "version", "--format", "{{.Server.Version}}").CombinedOutput()
	version := strings.TrimSpace(string(out))
	if err != nil {
		if probeCtx.Err() != nil {
			result.Detail = "daemon did not answer within " + dockerProbeTimeout.String()
			return result
		}
		if version == "" {
			version = err.Error()
		}
		result.Detail = "daemon unreachable: " + firstLine(version)
		return result
	}
	result.Available = true
	if version != "" {
		result.Detail = "server " + firstLine(version)
	}
	return result
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
