// Package agent runs the tool-augmented reasoning loop: prompt the model,
// execute any tool directive it emits, feed the output back, repeat until
// the model answers in plain text or the turn budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/model"
	"github.com/odvcencio/pocketdev/pkg/persist"
	"github.com/odvcencio/pocketdev/pkg/registry"
	"github.com/odvcencio/pocketdev/pkg/tools"
)

const (
	// MaxTurns bounds the reasoning loop.
	MaxTurns = 5
	// maxToolOutput caps how much tool output is fed back per turn.
	maxToolOutput = 2000
	// taskPreviewLen is how much of the prompt the task summary keeps.
	taskPreviewLen = 30
)

const systemTemplate = `You are a coding assistant working in the workspace: %s

You can use tools. To call a tool, reply with EXACTLY this format and nothing after it:
[[TOOL: name | argument]]

Available tools:
- run: execute a shell command (argument: the command)
- list: list a directory (argument: relative path, empty for the workspace root)
- read: read a file (argument: relative path)
- switch: change the active workspace (argument: absolute path)

After a tool runs you will see its output and may continue. When you have the
final answer, reply in plain text with no tool call.

User: %s
Agent:`

// Runner executes reasoning sessions against one workspace and registry.
type Runner struct {
	gen      model.Generator
	exec     *tools.Executor
	reg      *registry.Registry
	logs     *registry.LogBook
	store    *persist.Store
	listener *events.Listener
	logger   *logging.Logger

	model       string
	temperature float64
}

// NewRunner wires a Runner. gen may be any Generator, including a stub.
func NewRunner(
	gen model.Generator,
	exec *tools.Executor,
	reg *registry.Registry,
	logs *registry.LogBook,
	store *persist.Store,
	listener *events.Listener,
	logger *logging.Logger,
	modelName string,
	temperature float64,
) *Runner {
	return &Runner{
		gen:         gen,
		exec:        exec,
		reg:         reg,
		logs:        logs,
		store:       store,
		listener:    listener,
		logger:      logger,
		model:       modelName,
		temperature: temperature,
	}
}

// RunOptions adjusts how a session is recorded.
type RunOptions struct {
	// Name labels a session record created by this run.
	Name string
	// Source is recorded in the session's meta ("playground", "api", ...).
	Source string
}

// Result is the outcome of one Run.
type Result struct {
	Response string `json:"response"`
	Turns    int    `json:"turns"`
}

// Run executes up to MaxTurns reasoning turns for the given session. Model
// failures are absorbed into the conversation as text; the loop itself never
// fails. State is persisted exactly once, after the loop finishes.
func (r *Runner) Run(ctx context.Context, sessionID, prompt string, opts RunOptions) Result {
	r.beginSession(sessionID, prompt, opts)
	r.logs.Append(sessionID, registry.LogLevelUser, prompt)

	convo := fmt.Sprintf(systemTemplate, r.exec.Workspace(), prompt)
	lastText := ""
	turns := 0

loop:
	for turn := 0; turn < MaxTurns; turn++ {
		turns++

		text, err := r.gen.Generate(ctx, convo, r.model, r.temperature)
		if err != nil {
			text = model.ErrorText(err)
		}
		lastText = text

		directive, outcome := Parse(text)
		switch outcome {
		case OutcomeNone:
			break loop
		case OutcomeMalformed:
			r.logs.Append(sessionID, registry.LogLevelInfo, "Malformed tool call in model output")
			convo += fmt.Sprintf("\nAgent: %s\nSystem: Error: Malformed tool call. Use [[TOOL: name | argument]].\nAgent:", text)
			continue
		}

		r.logs.Append(sessionID, registry.LogLevelInfo,
			fmt.Sprintf("Executing tool: %s %s", directive.Name, directive.Arg))

		output := clipOutput(r.dispatch(ctx, directive))
		convo += fmt.Sprintf("\nAgent: %s\nSystem: Tool Output: %s\nAgent:", text, output)
	}

	r.logs.Append(sessionID, registry.LogLevelAgent, lastText)
	r.listener.OnTaskCompleted(sessionID, map[string]any{
		"response": lastText,
		"turns":    turns,
	})

	if err := r.store.Save(); err != nil {
		r.logger.Error(logging.CategorySession, "session_save_failed", err.Error(), nil)
	}

	return Result{Response: lastText, Turns: turns}
}

// Respond handles a direct message to an existing session: one model call,
// no tool loop.
func (r *Runner) Respond(ctx context.Context, sessionID, message string) (string, error) {
	if _, ok := r.reg.Get(sessionID); !ok {
		return "", errors.Newf(errors.ErrCodeNotFound, "agent not found: %s", sessionID)
	}

	r.logs.Append(sessionID, registry.LogLevelUser, "[You]: "+message)

	prompt := fmt.Sprintf("You are a coding assistant working in the workspace: %s\n\nUser: %s\nAgent:",
		r.exec.Workspace(), message)
	text, err := r.gen.Generate(ctx, prompt, r.model, r.temperature)
	if err != nil {
		text = model.ErrorText(err)
	}

	r.logs.Append(sessionID, registry.LogLevelAgent, text)
	r.reg.Update(sessionID, func(a *registry.Agent) { a.LastActive = time.Now() })

	if err := r.store.Save(); err != nil {
		r.logger.Error(logging.CategorySession, "session_save_failed", err.Error(), nil)
	}
	return text, nil
}

// beginSession records loop entry in the registry: status running, fresh
// activity, a short task summary, and the workspace snapshotted at start.
func (r *Runner) beginSession(sessionID, prompt string, opts RunOptions) {
	task := "Chat: " + prompt
	if len(prompt) > taskPreviewLen {
		task = "Chat: " + prompt[:taskPreviewLen] + "..."
	}

	ws := r.exec.Workspace()
	now := time.Now()

	updated := r.reg.Update(sessionID, func(a *registry.Agent) {
		a.Status = registry.StatusRunning
		a.LastActive = now
		a.CurrentTask = task
		a.Workspace = ws
		if a.Meta == nil {
			a.Meta = make(map[string]string)
		}
		a.Meta["model"] = r.model
		if opts.Source != "" {
			a.Meta["source"] = opts.Source
		}
	})
	if !updated {
		name := opts.Name
		if name == "" {
			name = "Playground Agent"
		}
		meta := map[string]string{"model": r.model}
		if opts.Source != "" {
			meta["source"] = opts.Source
		}
		r.reg.Upsert(registry.Agent{
			ID:          sessionID,
			Name:        name,
			Status:      registry.StatusRunning,
			LastActive:  now,
			CurrentTask: task,
			Workspace:   ws,
			Meta:        meta,
		})
	}
	r.listener.OnStatusChanged(sessionID, registry.StatusRunning)
}

// dispatch executes one directive and renders its result as text for the
// conversation. Tool failures come back as text, never as loop errors.
func (r *Runner) dispatch(ctx context.Context, d Directive) string {
	switch d.Name {
	case KindRun:
		res, err := r.exec.RunShell(ctx, d.Arg, "")
		if err != nil {
			return "Error executing tool: " + err.Error()
		}
		return fmt.Sprintf("Exit code: %d\nStdout: %s\nStderr: %s", res.ExitCode, res.Stdout, res.Stderr)

	case KindList:
		entries, err := r.exec.ListDirectory(d.Arg)
		if err != nil {
			return "Error executing tool: " + err.Error()
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return "Error executing tool: " + err.Error()
		}
		return string(data)

	case KindRead:
		content, err := r.exec.ReadFile(d.Arg)
		if err != nil {
			return "Error executing tool: " + err.Error()
		}
		return content.Content

	case KindSwitch:
		path, err := r.exec.SwitchWorkspace(d.Arg)
		if err != nil {
			return "Error executing tool: " + err.Error()
		}
		r.listener.OnWorkspaceSwitched(path)
		return "Workspace switched to: " + path

	default:
		return fmt.Sprintf("Error: Unknown tool %q", string(d.Name))
	}
}

func clipOutput(s string) string {
	if len(s) <= maxToolOutput {
		return s
	}
	return s[:maxToolOutput] + "\n... (output truncated)"
}
