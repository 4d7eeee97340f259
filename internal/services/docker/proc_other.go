//go:build !unix

package docker

import "os/exec"

func configureCommand(cmd *exec.Cmd) {}
