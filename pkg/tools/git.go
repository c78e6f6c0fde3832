package tools

import (
	"context"
	"strconv"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/sandbox"
)

const recentCommitLimit = 8

// Commit is one entry of the recent history.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// GitStatus summarizes a repository's working tree state. IsRepo is false
// when the target is not a repository (or git itself is unavailable); all
// other fields are then zero.
type GitStatus struct {
	IsRepo        bool     `json:"is_repo"`
	Branch        string   `json:"branch,omitempty"`
	RemoteURL     string   `json:"remote,omitempty"`
	Ahead         int      `json:"ahead"`
	Behind        int      `json:"behind"`
	Staged        []string `json:"staged"`
	Changed       []string `json:"changed"`
	Untracked     []string `json:"untracked"`
	IsClean       bool     `json:"is_clean"`
	RecentCommits []Commit `json:"recent_commits"`
}

// GitStatusAt inspects the repository at rel within the workspace. Branch,
// remote, and history come from go-git; the porcelain status and
// ahead/behind counts come from read-only git queries with a hard timeout
// each. Any failure degrades to a "not a repository" result instead of
// propagating.
func (e *Executor) GitStatusAt(ctx context.Context, rel string) (*GitStatus, error) {
	target, err := e.root.Resolve(rel)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(target, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return &GitStatus{IsRepo: false, Staged: []string{}, Changed: []string{}, Untracked: []string{}, RecentCommits: []Commit{}}, nil
	}

	status := &GitStatus{
		IsRepo:        true,
		Staged:        []string{},
		Changed:       []string{},
		Untracked:     []string{},
		RecentCommits: []Commit{},
	}

	head, err := repo.Head()
	if err == nil {
		status.Branch = head.Name().Short()

		if iter, err := repo.Log(&git.LogOptions{From: head.Hash()}); err == nil {
			for i := 0; i < recentCommitLimit; i++ {
				c, err := iter.Next()
				if err != nil {
					break
				}
				status.RecentCommits = append(status.RecentCommits, Commit{
					Hash:    c.Hash.String()[:7],
					Message: firstLine(c.Message),
				})
			}
			iter.Close()
		}
	}

	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			status.RemoteURL = urls[0]
		}
	}

	// Porcelain status via subprocess; go-git's worktree status walks the
	// whole tree and is far slower on large checkouts.
	if res := sandbox.RunGit(ctx, []string{"status", "--porcelain"}, target, sandbox.GitQueryTimeout); !res.Killed && res.ExitCode == 0 {
		parsePorcelain(res.Stdout, status)
	}
	status.IsClean = len(status.Staged) == 0 && len(status.Changed) == 0 && len(status.Untracked) == 0

	if res := sandbox.RunGit(ctx, []string{"rev-list", "--left-right", "--count", "HEAD...@{u}"}, target, sandbox.GitQueryTimeout); !res.Killed && res.ExitCode == 0 {
		status.Ahead, status.Behind = parseAheadBehind(res.Stdout)
	}

	return status, nil
}

// GitRun executes an allow-listed git command at rel within the workspace.
func (e *Executor) GitRun(ctx context.Context, command, rel string) (*ShellResult, error) {
	target, err := e.root.Resolve(rel)
	if err != nil {
		return nil, err
	}

	args, err := sandbox.ValidateGit(command)
	if err != nil {
		return nil, err
	}

	res := sandbox.RunGit(ctx, args, target, sandbox.ShellTimeout)
	e.logger.Info(logging.CategoryTool, "git_executed", command, map[string]any{
		"exit_code": res.ExitCode,
		"timed_out": res.Killed,
	})
	return &ShellResult{
		Stdout:   toText(res.Stdout),
		Stderr:   toText(res.Stderr),
		ExitCode: res.ExitCode,
		TimedOut: res.Killed,
	}, nil
}

func parsePorcelain(raw string, status *GitStatus) {
	for _, line := range strings.Split(raw, "\n") {
		if len(strings.TrimSpace(line)) == 0 || len(line) < 3 {
			continue
		}
		xy, name := line[:2], line[3:]
		if xy == "??" {
			status.Untracked = append(status.Untracked, name)
			continue
		}
		if strings.ContainsRune("MADRC", rune(xy[0])) {
			status.Staged = append(status.Staged, name)
		}
		if strings.ContainsRune("MD", rune(xy[1])) {
			status.Changed = append(status.Changed, name)
		}
	}
}

func parseAheadBehind(raw string) (ahead, behind int) {
	parts := strings.Split(strings.TrimSpace(raw), "\t")
	if len(parts) != 2 {
		return 0, 0
	}
	ahead, _ = strconv.Atoi(parts[0])
	behind, _ = strconv.Atoi(parts[1])
	return ahead, behind
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
