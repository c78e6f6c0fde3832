// Package persist serializes the agent registry and conversation logs to a
// single JSON snapshot. Durability is best-effort: the snapshot is fully
// overwritten on every save, load failures are logged and swallowed, and
// there is no file-level lock. Acceptable only for a single-writer process.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/registry"
)

// SnapshotName is the snapshot file name, created in the startup workspace
// so persistence survives later workspace switches.
const SnapshotName = ".pocketdev_agents.json"

// Store reads and writes the snapshot for one registry/log book pair.
type Store struct {
	path   string
	reg    *registry.Registry
	logs   *registry.LogBook
	logger *logging.Logger
}

// New creates a Store anchored at the given startup workspace.
func New(startupWorkspace string, reg *registry.Registry, logs *registry.LogBook, logger *logging.Logger) *Store {
	return &Store{
		path:   filepath.Join(startupWorkspace, SnapshotName),
		reg:    reg,
		logs:   logs,
		logger: logger,
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// snapshot is the wire format. Timestamps travel as strings so a malformed
// value drops to zero instead of failing the whole load.
type snapshot struct {
	Agents []agentRecord          `json:"agents"`
	Logs   map[string][]logRecord `json:"logs"`
}

type agentRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	LastActive  string            `json:"last_active,omitempty"`
	CurrentTask string            `json:"current_task,omitempty"`
	Workspace   string            `json:"workspace,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type logRecord struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Load restores the snapshot into the registry and log book. A missing file
// is a no-op. A corrupt file is reported and discarded; the process starts
// with empty state.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Warn(logging.CategoryStorage, "snapshot_read_failed", err.Error(), nil)
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		corrupt := errors.Wrap(err, errors.ErrCodeStorageCorrupt, "snapshot is not valid JSON").
			WithContext("path", s.path)
		s.logger.Warn(logging.CategoryStorage, "snapshot_corrupt", corrupt.Error(), nil)
		return nil
	}

	for _, rec := range snap.Agents {
		if rec.ID == "" {
			continue
		}
		s.reg.Upsert(registry.Agent{
			ID:          rec.ID,
			Name:        rec.Name,
			Status:      registry.Status(rec.Status),
			LastActive:  parseTime(rec.LastActive),
			CurrentTask: rec.CurrentTask,
			Workspace:   rec.Workspace,
			Meta:        rec.Meta,
		})
	}

	logs := make(map[string][]registry.LogEntry, len(snap.Logs))
	for id, records := range snap.Logs {
		entries := make([]registry.LogEntry, 0, len(records))
		for _, rec := range records {
			entries = append(entries, registry.LogEntry{
				Timestamp: parseTime(rec.Timestamp),
				Level:     registry.LogLevel(rec.Level),
				Message:   rec.Message,
			})
		}
		logs[id] = entries
	}
	s.logs.Replace(logs)

	s.logger.Info(logging.CategoryStorage, "snapshot_loaded", "", map[string]any{
		"agents": len(snap.Agents),
		"logs":   len(snap.Logs),
		"path":   s.path,
	})
	return nil
}

// Save overwrites the snapshot with the full current state. Called
// write-through at the end of every mutating operation; failures are
// reported but never block the request path.
func (s *Store) Save() error {
	snap := snapshot{
		Agents: make([]agentRecord, 0, s.reg.Len()),
		Logs:   make(map[string][]logRecord),
	}

	for _, a := range s.reg.GetAll() {
		snap.Agents = append(snap.Agents, agentRecord{
			ID:          a.ID,
			Name:        a.Name,
			Status:      string(a.Status),
			LastActive:  formatTime(a.LastActive),
			CurrentTask: a.CurrentTask,
			Workspace:   a.Workspace,
			Meta:        a.Meta,
		})
	}

	for id, entries := range s.logs.Snapshot() {
		records := make([]logRecord, 0, len(entries))
		for _, e := range entries {
			records = append(records, logRecord{
				Timestamp: formatTime(e.Timestamp),
				Level:     string(e.Level),
				Message:   e.Message,
			})
		}
		snap.Logs[id] = records
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to marshal snapshot")
	}

	// Flush-then-rename keeps the previous snapshot intact if the write dies.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.logger.Warn(logging.CategoryStorage, "snapshot_write_failed", err.Error(), nil)
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to write snapshot")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn(logging.CategoryStorage, "snapshot_rename_failed", err.Error(), nil)
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to replace snapshot")
	}
	return nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	// Malformed timestamps drop the value rather than failing the load.
	return time.Time{}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339Nano)
}
