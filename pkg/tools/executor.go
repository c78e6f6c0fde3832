// Package tools exposes the sandboxed operations a remote caller (or the
// agent loop) may perform against the active workspace: shell execution,
// file browsing and editing, workspace switching, and version control.
// Every filesystem path is confined by the workspace guard; every command
// passes the sandbox policies.
package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/sandbox"
	"github.com/odvcencio/pocketdev/pkg/workspace"
)

const (
	// MaxReadBytes caps file reads.
	MaxReadBytes = 512 * 1024
	// MaxEditBytes caps overwrites of an existing file.
	MaxEditBytes = 2 * 1024 * 1024
)

// ignored are noise entries skipped when listing directories. Dotfiles are
// skipped separately.
var ignored = map[string]struct{}{
	".git":         {},
	"__pycache__":  {},
	"node_modules": {},
	".venv":        {},
	"venv":         {},
	".DS_Store":    {},
	"dist":         {},
	"build":        {},
	".next":        {},
}

// Executor performs sandboxed operations against the current workspace root.
// Each call resolves the root at call time, so a workspace switch is visible
// to the next operation.
type Executor struct {
	root   *workspace.Root
	logger *logging.Logger
}

// NewExecutor creates an Executor bound to the given workspace root.
func NewExecutor(root *workspace.Root, logger *logging.Logger) *Executor {
	return &Executor{root: root, logger: logger}
}

// Workspace returns the active workspace root.
func (e *Executor) Workspace() string { return e.root.Current() }

// ShellResult is the outcome of a shell or git invocation.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// RunShell executes a shell command with the workspace as default working
// directory. A relative cwd is confined to the workspace; an absolute cwd is
// taken as-is (the caller is already authenticated). Timeouts come back as a
// soft-failure result, not an error.
func (e *Executor) RunShell(ctx context.Context, command, cwd string) (*ShellResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no command provided")
	}
	if err := sandbox.ValidateShell(command); err != nil {
		return nil, err
	}

	dir := e.root.Current()
	switch {
	case cwd == "":
	case filepath.IsAbs(cwd):
		dir = cwd
	default:
		resolved, err := e.root.Resolve(cwd)
		if err != nil {
			return nil, err
		}
		dir = resolved
	}

	res := sandbox.RunShell(ctx, command, dir, sandbox.ShellTimeout)
	e.logger.Info(logging.CategoryTool, "shell_executed", command, map[string]any{
		"exit_code": res.ExitCode,
		"timed_out": res.Killed,
		"cwd":       dir,
	})
	return &ShellResult{
		Stdout:   toText(res.Stdout),
		Stderr:   toText(res.Stderr),
		ExitCode: res.ExitCode,
		TimedOut: res.Killed,
	}, nil
}

// Entry describes one directory listing item.
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Kind       string    `json:"type"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified"`
	Extension  string    `json:"extension,omitempty"`
}

// ListDirectory lists rel within the workspace, skipping noise entries and
// dotfiles, directories first then case-insensitive name.
func (e *Executor) ListDirectory(rel string) ([]Entry, error) {
	target, err := e.root.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "path not found: %s", rel)
		}
		return nil, errors.Wrap(err, errors.ErrCodePermission, "cannot stat path")
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeNotADir, "path is not a directory: %s", rel)
	}

	items, err := os.ReadDir(target)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePermission, "cannot read directory")
	}

	base := e.root.Current()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if _, skip := ignored[name]; skip || strings.HasPrefix(name, ".") {
			continue
		}

		fi, err := item.Info()
		if err != nil {
			continue
		}

		relPath, err := filepath.Rel(base, filepath.Join(target, name))
		if err != nil {
			relPath = name
		}

		entry := Entry{
			Name:       name,
			Path:       relPath,
			Kind:       "file",
			ModifiedAt: fi.ModTime(),
		}
		if item.IsDir() {
			entry.Kind = "directory"
		} else {
			entry.Size = fi.Size()
			entry.Extension = strings.TrimPrefix(filepath.Ext(name), ".")
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == "directory"
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// FileContent is the result of a file read.
type FileContent struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	LineCount int    `json:"lines"`
	ByteSize  int64  `json:"size"`
	Extension string `json:"extension,omitempty"`
}

// ReadFile reads rel within the workspace, capped at MaxReadBytes. Content
// is decoded as text with invalid bytes replaced.
func (e *Executor) ReadFile(rel string) (*FileContent, error) {
	target, err := e.root.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "file not found: %s", rel)
		}
		return nil, errors.Wrap(err, errors.ErrCodePermission, "cannot stat file")
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeNotAFile, "path is not a file: %s", rel)
	}
	if info.Size() > MaxReadBytes {
		return nil, errors.Newf(errors.ErrCodeFileTooLarge, "file too large: %d bytes (max %d)", info.Size(), MaxReadBytes)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePermission, "failed to read file")
	}

	content := toText(string(data))
	return &FileContent{
		Path:      rel,
		Name:      filepath.Base(target),
		Content:   content,
		LineCount: strings.Count(content, "\n") + 1,
		ByteSize:  info.Size(),
		Extension: strings.TrimPrefix(filepath.Ext(target), "."),
	}, nil
}

// WriteFile writes content to rel within the workspace, creating parent
// directories. Overwriting an existing file larger than MaxEditBytes is
// refused. The write goes through a temp file rename.
func (e *Executor) WriteFile(rel, content string) error {
	target, err := e.root.Resolve(rel)
	if err != nil {
		return err
	}

	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return errors.Newf(errors.ErrCodeNotAFile, "path is not a file: %s", rel)
		}
		if info.Size() > MaxEditBytes {
			return errors.Newf(errors.ErrCodeFileTooLarge, "existing file too large to edit: %d bytes (max %d)", info.Size(), MaxEditBytes)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodePermission, "failed to create parent directory")
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodePermission, "failed to write file")
	}
	if err := os.Rename(tmp, target); err != nil {
		return errors.Wrap(err, errors.ErrCodePermission, "failed to replace file")
	}

	e.logger.Info(logging.CategoryTool, "file_written", rel, map[string]any{"bytes": len(content)})
	return nil
}

// SwitchWorkspace publishes path as the new workspace root. No confinement
// applies: a switch is an escape by design, reachable only through
// authenticated surfaces.
func (e *Executor) SwitchWorkspace(path string) (string, error) {
	published, err := e.root.Switch(path)
	if err != nil {
		return "", err
	}
	e.logger.Info(logging.CategoryWorkspace, "workspace_switched", published, nil)
	return published, nil
}

// WorkspaceInfo describes one candidate workspace.
type WorkspaceInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsCurrent bool   `json:"is_current"`
}

// ListWorkspaces lists candidate workspaces: subdirectories of ~/Projects
// when it exists, otherwise siblings of the current workspace.
func (e *Executor) ListWorkspaces() ([]WorkspaceInfo, string, error) {
	current := e.root.Current()

	root := ""
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, "Projects")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			root = candidate
		}
	}
	if root == "" {
		root = filepath.Dir(current)
	}

	items, err := os.ReadDir(root)
	if err != nil {
		return nil, root, errors.Wrap(err, errors.ErrCodePermission, "cannot read workspaces root")
	}

	out := make([]WorkspaceInfo, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		path := filepath.Join(root, item.Name())
		out = append(out, WorkspaceInfo{
			Name:      item.Name(),
			Path:      path,
			IsCurrent: path == current,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, root, nil
}

// toText replaces invalid UTF-8 bytes so output is always renderable text.
func toText(s string) string {
	return strings.ToValidUTF8(s, "�")
}
