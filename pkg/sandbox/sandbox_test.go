package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

func TestValidateShell(t *testing.T) {
	tests := []struct {
		command string
		wantErr bool
	}{
		{"ls -la", false},
		{"cat file.txt", false},
		{"rm -rf /", true},
		{"rm -rf ~", true},
		{"echo hi && rm -rf /", true},
		{"mkfs.ext4 /dev/sdb1", true},
		{"dd if=/dev/zero of=/dev/sda", true},
		{":(){ :|:& };:", true},
		{"git push origin main", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := ValidateShell(tt.command)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateShell(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if err != nil && errors.GetCode(err) != errors.ErrCodeCommandBlocked {
				t.Errorf("code = %v, want COMMAND_BLOCKED", errors.GetCode(err))
			}
		})
	}
}

func TestValidateGit_AllowList(t *testing.T) {
	allowed := []string{
		"pull", "push origin main", "add .", "commit -m msg",
		"checkout -b feature", "stash", "fetch --all", "diff HEAD~1",
		"log --oneline", "status",
	}
	for _, cmd := range allowed {
		if _, err := ValidateGit(cmd); err != nil {
			t.Errorf("ValidateGit(%q) = %v, want nil", cmd, err)
		}
	}

	denied := []string{"rebase -i HEAD~3", "reset --hard", "clean -fd", "rm file", "config user.email x"}
	for _, cmd := range denied {
		_, err := ValidateGit(cmd)
		if err == nil {
			t.Errorf("ValidateGit(%q) = nil, want error", cmd)
			continue
		}
		if errors.GetCode(err) != errors.ErrCodeCommandNotAllowed {
			t.Errorf("code = %v, want COMMAND_NOT_ALLOWED", errors.GetCode(err))
		}
		// The allow-list must be reproduced verbatim in the error.
		want := strings.Join(GitAllowedList(), ", ")
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should list allowed set %q", err.Error(), want)
		}
	}
}

func TestValidateGit_Empty(t *testing.T) {
	if _, err := ValidateGit("   "); err == nil {
		t.Error("empty command should be rejected")
	}
}

func TestValidateGit_Tokenizes(t *testing.T) {
	parts, err := ValidateGit("commit  -m   'two words'")
	if err != nil {
		t.Fatalf("ValidateGit: %v", err)
	}
	if parts[0] != "commit" {
		t.Errorf("first token = %q, want commit", parts[0])
	}
}

func TestRunShell_CapturesOutput(t *testing.T) {
	res := RunShell(context.Background(), "echo out; echo err 1>&2; exit 3", t.TempDir(), ShellTimeout)

	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("Stdout = %q, want out", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stderr = %q, want err", res.Stderr)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Killed {
		t.Error("Killed should be false")
	}
}

func TestRunShell_TimeoutIsSoftFailure(t *testing.T) {
	start := time.Now()
	res := RunShell(context.Background(), "sleep 5", t.TempDir(), 100*time.Millisecond)

	if !res.Killed {
		t.Error("Killed should be true after timeout")
	}
	if res.ExitCode != 124 {
		t.Errorf("ExitCode = %d, want 124", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("Stderr = %q, want timeout note", res.Stderr)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timed-out command should return promptly")
	}
}

func TestRunShell_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	res := RunShell(context.Background(), "pwd", dir, ShellTimeout)

	got := strings.TrimSpace(res.Stdout)
	if !strings.HasSuffix(got, dirBase(dir)) {
		t.Errorf("pwd = %q, want suffix %q", got, dirBase(dir))
	}
}

func dirBase(dir string) string {
	i := strings.LastIndex(dir, "/")
	return dir[i+1:]
}
