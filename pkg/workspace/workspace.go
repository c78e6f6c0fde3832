// Package workspace holds the mutable workspace root all sandboxed
// operations are confined to, and the path resolution guard that enforces
// the confinement.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

// Root is the process-wide current workspace root. The value is published
// by replacement: readers always observe either the old or the new path,
// never a torn one.
type Root struct {
	startup string
	current atomic.Value // string
}

// NewRoot creates a Root anchored at the given absolute startup path.
func NewRoot(path string) (*Root, error) {
	abs, err := canonicalDir(path)
	if err != nil {
		return nil, err
	}
	r := &Root{startup: abs}
	r.current.Store(abs)
	return r, nil
}

// Current returns the active workspace root.
func (r *Root) Current() string {
	return r.current.Load().(string)
}

// Startup returns the workspace root the process started with. Persistence
// is anchored here so the snapshot survives workspace switches.
func (r *Root) Startup() string {
	return r.startup
}

// Switch atomically publishes a new workspace root. The target must exist
// and be a directory. Switching is an escape by design, not a violation;
// callers reach this only through authenticated surfaces.
func (r *Root) Switch(path string) (string, error) {
	abs, err := canonicalDir(path)
	if err != nil {
		return "", err
	}
	r.current.Store(abs)
	return abs, nil
}

// Resolve confines rel to the current workspace root.
func (r *Root) Resolve(rel string) (string, error) {
	return Resolve(r.Current(), rel)
}

func canonicalDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "workspace path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid workspace path")
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrCodeNotFound, "workspace %s does not exist", abs)
		}
		return "", errors.Wrap(err, errors.ErrCodePermission, "cannot stat workspace")
	}
	if !info.IsDir() {
		return "", errors.Newf(errors.ErrCodeNotADir, "workspace %s is not a directory", abs)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// Resolve joins rel onto base and verifies the canonical result stays inside
// base. A leading separator on rel is stripped first so an absolute argument
// cannot override the base. The target leaf itself may not exist; callers
// that need an existing file check afterwards.
func Resolve(base, rel string) (string, error) {
	canonicalBase, err := filepath.Abs(base)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid base path")
	}
	canonicalBase = filepath.Clean(canonicalBase)
	if resolved, err := filepath.EvalSymlinks(canonicalBase); err == nil {
		canonicalBase = resolved
	}

	rel = strings.TrimSpace(rel)
	rel = strings.TrimPrefix(rel, string(os.PathSeparator))

	target := filepath.Clean(filepath.Join(canonicalBase, rel))
	target = canonicalize(target)

	if target != canonicalBase && !strings.HasPrefix(target, canonicalBase+string(os.PathSeparator)) {
		return "", errors.Newf(errors.ErrCodePathTraversal, "path %q escapes workspace", rel).
			WithContext("workspace", canonicalBase)
	}
	return target, nil
}

// canonicalize resolves symlinks in path. When the leaf does not exist yet
// (pending writes), the parent is resolved and the leaf re-joined.
func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	dir, leaf := filepath.Split(path)
	if resolved, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
		return filepath.Join(resolved, leaf)
	}
	return path
}
