package events

import (
	"strings"
	"time"

	"github.com/odvcencio/pocketdev/pkg/registry"
)

// Event types emitted by the Listener.
const (
	TypeAgentStarted      = "agent_started"
	TypeAgentStopped      = "agent_stopped"
	TypeTaskCompleted     = "task_completed"
	TypeAgentError        = "agent_error"
	TypeApprovalRequired  = "approval_required"
	TypeStatusChanged     = "status_changed"
	TypeWorkspaceSwitched = "workspace_switched"
)

// Listener translates host-side agent lifecycle callbacks into registry
// updates plus hub broadcasts. Callbacks may arrive on any goroutine.
type Listener struct {
	reg *registry.Registry
	hub *Hub
}

// NewListener creates a Listener.
func NewListener(reg *registry.Registry, hub *Hub) *Listener {
	return &Listener{reg: reg, hub: hub}
}

// OnAgentStarted records a new agent and broadcasts its arrival.
func (l *Listener) OnAgentStarted(agentID, name string, meta map[string]string) {
	l.reg.Upsert(registry.Agent{
		ID:         agentID,
		Name:       name,
		Status:     registry.StatusStarting,
		LastActive: time.Now(),
		Meta:       meta,
	})
	l.hub.Publish(Event{Type: TypeAgentStarted, AgentID: agentID, Payload: meta})
}

// OnAgentStopped marks the agent stopped.
func (l *Listener) OnAgentStopped(agentID string) {
	if l.touch(agentID, func(a *registry.Agent) { a.Status = registry.StatusStopped }) {
		l.hub.Publish(Event{Type: TypeAgentStopped, AgentID: agentID})
	}
}

// OnTaskCompleted refreshes activity and broadcasts the result payload.
func (l *Listener) OnTaskCompleted(agentID string, result map[string]any) {
	if l.touch(agentID, func(a *registry.Agent) {}) {
		l.hub.Publish(Event{Type: TypeTaskCompleted, AgentID: agentID, Payload: result})
	}
}

// OnAgentError marks the agent errored and stores the message in its meta.
func (l *Listener) OnAgentError(agentID, errMsg string) {
	updated := l.touch(agentID, func(a *registry.Agent) {
		a.Status = registry.StatusError
		if a.Meta == nil {
			a.Meta = make(map[string]string)
		}
		a.Meta["last_error"] = errMsg
	})
	if updated {
		l.hub.Publish(Event{Type: TypeAgentError, AgentID: agentID, Payload: map[string]string{"error": errMsg}})
	}
}

// ApprovalSuffix marks a parked agent's task in listings. Approval strips it.
const ApprovalSuffix = " (awaiting approval)"

// OnApprovalRequired parks the agent awaiting approval.
func (l *Listener) OnApprovalRequired(agentID, details string) {
	parked := l.touch(agentID, func(a *registry.Agent) {
		a.Status = registry.StatusWaitingApproval
		if !strings.HasSuffix(a.CurrentTask, ApprovalSuffix) {
			a.CurrentTask += ApprovalSuffix
		}
	})
	if parked {
		l.hub.Publish(Event{Type: TypeApprovalRequired, AgentID: agentID, Payload: map[string]string{"details": details}})
	}
}

// OnStatusChanged broadcasts an externally applied status change.
func (l *Listener) OnStatusChanged(agentID string, status registry.Status) {
	l.hub.Publish(Event{Type: TypeStatusChanged, AgentID: agentID, Payload: map[string]string{"status": string(status)}})
}

// OnWorkspaceSwitched broadcasts the new workspace root.
func (l *Listener) OnWorkspaceSwitched(path string) {
	l.hub.Publish(Event{Type: TypeWorkspaceSwitched, Payload: map[string]string{"workspace": path}})
}

func (l *Listener) touch(agentID string, fn func(*registry.Agent)) bool {
	return l.reg.Update(agentID, func(a *registry.Agent) {
		fn(a)
		a.LastActive = time.Now()
	})
}
