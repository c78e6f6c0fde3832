//go:build windows

package sandbox

import (
	"context"
	"os/exec"
)

// shellCommandContext returns the shell command for Windows with context.
func shellCommandContext(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/C", command)
}

// setSysProcAttr is a no-op on Windows.
func setSysProcAttr(cmd *exec.Cmd) {}
