// Package registry is the process-wide store of agent session records and
// their conversation logs. One mutex guards each collection; no operation
// performs I/O while holding it.
package registry

import (
	"sync"
	"time"
)

// Status is an agent lifecycle state. Transitions are caller-driven and
// deliberately unvalidated, matching how hosts report state changes.
type Status string

const (
	StatusStarting        Status = "starting"
	StatusRunning         Status = "running"
	StatusStopped         Status = "stopped"
	StatusError           Status = "error"
	StatusWaitingApproval Status = "waiting_approval"
)

// Agent is one session record. Workspace snapshots the root the session was
// created in (or last updated to); switching the process workspace later does
// not rewrite it.
type Agent struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      Status            `json:"status"`
	LastActive  time.Time         `json:"last_active"`
	CurrentTask string            `json:"current_task,omitempty"`
	Workspace   string            `json:"workspace,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// LogLevel classifies a conversation log entry.
type LogLevel string

const (
	LogLevelUser  LogLevel = "user"
	LogLevelInfo  LogLevel = "info"
	LogLevelAgent LogLevel = "agent"
)

// LogEntry is one line of a session's conversation log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Registry maps session id to Agent.
type Registry struct {
	mu     sync.Mutex
	agents map[string]Agent
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// GetAll returns a copy of every agent record.
func (r *Registry) GetAll() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	return a, ok
}

// Upsert inserts or replaces the record keyed by agent.ID.
func (r *Registry) Upsert(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
}

// Update applies fn to the record with the given id under the lock and
// stores the result. Returns false when the id is unknown.
func (r *Registry) Update(id string, fn func(*Agent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return false
	}
	fn(&a)
	a.ID = id
	r.agents[id] = a
	return true
}

// Remove deletes the record with the given id, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// MaxLogEntries caps each session's log. The original bridge grew logs
// without bound; we drop the oldest entries past this cap instead.
const MaxLogEntries = 1000

// LogBook holds per-session append-only conversation logs.
type LogBook struct {
	mu   sync.Mutex
	logs map[string][]LogEntry
}

// NewLogBook creates an empty LogBook.
func NewLogBook() *LogBook {
	return &LogBook{logs: make(map[string][]LogEntry)}
}

// Append adds an entry to the session's log, evicting the oldest entries
// once the cap is exceeded.
func (b *LogBook) Append(sessionID string, level LogLevel, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.logs[sessionID], LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	if len(entries) > MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries:]
	}
	b.logs[sessionID] = entries
}

// Get returns a copy of the session's log entries.
func (b *LogBook) Get(sessionID string) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.logs[sessionID]
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out
}

// Snapshot returns a copy of the whole log map.
func (b *LogBook) Snapshot() map[string][]LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]LogEntry, len(b.logs))
	for id, entries := range b.logs {
		cp := make([]LogEntry, len(entries))
		copy(cp, entries)
		out[id] = cp
	}
	return out
}

// Replace swaps the whole log map, used when restoring a snapshot.
func (b *LogBook) Replace(logs map[string][]LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if logs == nil {
		logs = make(map[string][]LogEntry)
	}
	b.logs = logs
}
