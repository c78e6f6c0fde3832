// Package sandbox classifies and executes shell and git commands on behalf
// of remote callers. The shell policy is a literal substring denylist: it is
// a guardrail against accidental self-harm, NOT a security boundary; a
// caller can trivially evade it with whitespace or encoding variation. The
// git policy is a first-token allow-list and is the only gate on mutating
// version-control commands.
package sandbox

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

const (
	// ShellTimeout bounds shell and mutating git commands.
	ShellTimeout = 30 * time.Second
	// GitQueryTimeout bounds each read-only git query.
	GitQueryTimeout = 10 * time.Second
)

// blockedSubstrings are catastrophic patterns rejected outright.
var blockedSubstrings = []string{
	"rm -rf /",
	"rm -rf ~",
	"mkfs",
	"dd if=/dev/zero",
	":(){ :|:& };:",
	"> /dev/sda",
}

// gitAllowed is the fixed set of permitted git subcommands.
var gitAllowed = map[string]struct{}{
	"pull":     {},
	"push":     {},
	"add":      {},
	"commit":   {},
	"checkout": {},
	"stash":    {},
	"fetch":    {},
	"diff":     {},
	"log":      {},
	"status":   {},
}

// GitAllowedList returns the allow-list sorted for error messages.
func GitAllowedList() []string {
	out := make([]string, 0, len(gitAllowed))
	for k := range gitAllowed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateShell rejects commands containing a blocked substring.
func ValidateShell(command string) error {
	for _, blocked := range blockedSubstrings {
		if strings.Contains(command, blocked) {
			return errors.New(errors.ErrCodeCommandBlocked, "command blocked for safety").
				WithContext("pattern", blocked)
		}
	}
	return nil
}

// ValidateGit accepts a git invocation only when its first whitespace token
// is in the allow-list. The allowed set is reproduced in the error so the
// caller can self-correct.
func ValidateGit(command string) ([]string, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no git command provided")
	}
	if _, ok := gitAllowed[parts[0]]; !ok {
		return nil, errors.Newf(errors.ErrCodeCommandNotAllowed,
			"git command not allowed. Allowed: %s", strings.Join(GitAllowedList(), ", "))
	}
	return parts, nil
}

// Result contains the outcome of a sandboxed command execution. Timeouts are
// reported here as a soft failure, never as an error return.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Killed   bool
	Duration time.Duration
}

// RunShell executes command through the platform shell in dir with a hard
// wall-clock timeout. Output is captured as text; invalid bytes were already
// replaced by the Go string conversion, so decoding never fails.
func RunShell(ctx context.Context, command, dir string, timeout time.Duration) *Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := shellCommandContext(ctx, command)
	setSysProcAttr(cmd)
	if dir != "" {
		cmd.Dir = dir
	}

	return run(ctx, cmd)
}

// RunGit executes git with args in dir under a hard timeout.
func RunGit(ctx context.Context, args []string, dir string, timeout time.Duration) *Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	setSysProcAttr(cmd)
	if dir != "" {
		cmd.Dir = dir
	}

	return run(ctx, cmd)
}

func run(ctx context.Context, cmd *exec.Cmd) *Result {
	start := time.Now()
	result := &Result{}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctx.Err() == context.DeadlineExceeded {
		result.Killed = true
		result.ExitCode = 124 // standard timeout exit code
		result.Stderr = strings.TrimSpace(result.Stderr + "\ncommand timed out")
		return result
	}

	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitError.ExitCode()
		} else {
			result.ExitCode = 1
			result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
		}
	}

	return result
}
