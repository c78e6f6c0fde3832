package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/pocketdev/pkg/agent"
	"github.com/odvcencio/pocketdev/pkg/errors"
	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type pairRequest struct {
	PairingKey string `json:"pairing_key"`
	DeviceName string `json:"device_name"`
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}

	token, err := s.tokens.Pair(req.PairingKey, req.DeviceName)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// agentView is an agent record together with its recent conversation log.
type agentView struct {
	registry.Agent
	Logs []registry.LogEntry `json:"logs"`
}

func (s *Server) agentView(a registry.Agent) agentView {
	return agentView{Agent: a, Logs: s.logs.Get(a.ID)}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.reg.GetAll()
	metricAgents.Set(float64(len(agents)))

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, s.agentView(a))
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": views})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.reg.Get(id)
	if !ok {
		respondError(w, errors.Newf(errors.ErrCodeNotFound, "agent not found: %s", id))
		return
	}
	respondJSON(w, http.StatusOK, s.agentView(a))
}

// handleApprove resumes an agent parked in waiting_approval.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updated := s.reg.Update(id, func(a *registry.Agent) {
		a.Status = registry.StatusRunning
		a.CurrentTask = strings.TrimSuffix(a.CurrentTask, events.ApprovalSuffix)
		a.LastActive = time.Now()
	})
	if !updated {
		respondError(w, errors.Newf(errors.ErrCodeNotFound, "agent not found: %s", id))
		return
	}

	s.logs.Append(id, registry.LogLevelInfo, "Approved by user")
	s.listener.OnStatusChanged(id, registry.StatusRunning)
	if err := s.store.Save(); err != nil {
		s.logger.Warn(logging.CategorySession, "approve_save_failed", err.Error(), nil)
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "agent_status": string(registry.StatusRunning)})
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, errors.New(errors.ErrCodeInvalidInput, "message is required"))
		return
	}

	reply, err := s.runner.Respond(r.Context(), id, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"response": reply})
}

type playgroundRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handlePlaygroundRun(w http.ResponseWriter, r *http.Request) {
	var req playgroundRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, errors.New(errors.ErrCodeInvalidInput, "prompt is required"))
		return
	}

	metricAgentRuns.Inc()
	result := s.runner.Run(r.Context(), PlaygroundSession, req.Prompt, agent.RunOptions{
		Name:   "Playground Agent",
		Source: "playground",
	})
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metricRealtimeClients.Set(float64(s.hub.ClientCount()))

	running, waiting := 0, 0
	for _, a := range s.reg.GetAll() {
		switch a.Status {
		case registry.StatusRunning, registry.StatusStarting:
			running++
		case registry.StatusWaitingApproval:
			waiting++
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"version":          s.version,
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"workspace":        s.exec.Workspace(),
		"agents":           s.reg.Len(),
		"agents_running":   running,
		"agents_waiting":   waiting,
		"realtime_clients": s.hub.ClientCount(),
		"goroutines":       runtime.NumGoroutine(),
		"heap_bytes":       mem.HeapAlloc,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	entries, err := s.exec.ListDirectory(path)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"files": entries,
	})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, errors.New(errors.ErrCodeInvalidInput, "path is required"))
		return
	}

	content, err := s.exec.ReadFile(path)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, content)
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Path == "" {
		respondError(w, errors.New(errors.ErrCodeInvalidInput, "path is required"))
		return
	}

	if err := s.exec.WriteFile(req.Path, req.Content); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"path":  req.Path,
		"bytes": len(req.Content),
	})
}

type terminalRequest struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

func (s *Server) handleTerminalRun(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}

	result, err := s.exec.RunShell(r.Context(), req.Command, req.Cwd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.exec.GitStatusAt(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type gitRunRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleGitRun(w http.ResponseWriter, r *http.Request) {
	var req gitRunRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}

	result, err := s.exec.GitRun(r.Context(), req.Command, "")
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, root, err := s.exec.ListWorkspaces()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"root":       root,
		"current":    s.exec.Workspace(),
		"workspaces": workspaces,
	})
}

type switchWorkspaceRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	var req switchWorkspaceRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Path == "" {
		respondError(w, errors.New(errors.ErrCodeInvalidInput, "path is required"))
		return
	}

	path, err := s.exec.SwitchWorkspace(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}

	s.listener.OnWorkspaceSwitched(path)
	respondJSON(w, http.StatusOK, map[string]string{"workspace": path})
}
