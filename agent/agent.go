package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/martinemde/converge/llm"
	"github.com/martinemde/converge/tools"
)

// builtinTools maps allow-list names to their constructors.
var builtinTools = map[string]func(*tools.Workspace, Config) tools.Tool{
	"fs_read":  func(ws *tools.Workspace, _ Config) tools.Tool { return tools.NewReadFileTool(ws) },
	"fs_write": func(ws *tools.Workspace, _ Config) tools.Tool { return tools.NewWriteFileTool(ws) },
	"fs_list":  func(ws *tools.Workspace, _ Config) tools.Tool { return tools.NewListDirTool(ws) },
	"grep":     func(ws *tools.Workspace, _ Config) tools.Tool { return tools.NewGrepTool(ws) },
	"find":     func(ws *tools.Workspace, _ Config) tools.Tool { return tools.NewFindTool(ws) },
	"execute_bash": func(ws *tools.Workspace, cfg Config) tools.Tool {
		return tools.NewBashTool(ws).WithTimeout(cfg.BashTimeout)
	},
}

// BuiltinToolNames returns the names of the tools an allow-list may name.
func BuiltinToolNames() []string {
	names := make([]string, 0, len(builtinTools))
	for name := range builtinTools {
		names = append(names, name)
	}
	return names
}

// Agent owns the long-running pieces: the tool registry, the task queue,
// the pricing table, and the aggregate usage tracker. Tasks run through it
// either directly via Execute or through the queue via Enqueue + Run.
type Agent struct {
	config    Config
	client    llm.ModelClient
	workspace *tools.Workspace
	registry  *tools.Registry
	queue     *Queue
	executor  *Executor
	emitter   *EventEmitter
	tracker   *Tracker
	results   chan TaskResult
}

// New validates the configuration, builds the sandboxed tool registry from
// the allow-list and permissions, and wires the executor.
func New(config Config, client llm.ModelClient) (*Agent, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "model client is required"}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	workspace, err := tools.NewWorkspace(cfg.WorkspaceDir)
	if err != nil {
		return nil, &ConfigError{Field: "workspace_dir", Message: err.Error()}
	}

	registry := tools.NewRegistry()
	for _, name := range cfg.AllowedTools {
		build, ok := builtinTools[name]
		if !ok {
			return nil, &ConfigError{Field: "allowed_tools", Message: fmt.Sprintf("unknown tool %q", name)}
		}
		if perm, ok := cfg.ToolPermissions[name]; ok && perm.Policy == PermissionDeny {
			continue
		}
		registry.Register(build(workspace, cfg))
	}

	emitter := NewEventEmitter(256)
	tracker := NewTracker()
	accountant := NewAccountant(cfg.Pricing)

	return &Agent{
		config:    cfg,
		client:    client,
		workspace: workspace,
		registry:  registry,
		queue:     NewQueue(),
		executor:  NewExecutor(cfg, client, registry, accountant, tracker, emitter),
		emitter:   emitter,
		tracker:   tracker,
		results:   make(chan TaskResult, 64),
	}, nil
}

// Execute runs a task synchronously and returns its result.
func (a *Agent) Execute(ctx context.Context, task Task) TaskResult {
	return a.executor.Execute(ctx, task)
}

// Enqueue submits a task to the queue at the given priority.
func (a *Agent) Enqueue(task Task, priority Priority) QueuedTask {
	return a.queue.Enqueue(task, priority)
}

// Run consumes the queue until the context is done, executing up to
// workers tasks concurrently. Results are delivered on Results.
func (a *Agent) Run(ctx context.Context, workers int64) error {
	return a.queue.Run(ctx, workers, func(ctx context.Context, qt QueuedTask) {
		result := a.executor.Execute(ctx, qt.Task)
		select {
		case a.results <- result:
		default:
			// A host that never drains Results does not get to wedge the
			// worker pool.
		}
	})
}

// Results returns the channel task results are delivered on when tasks run
// through the queue.
func (a *Agent) Results() <-chan TaskResult {
	return a.results
}

// Events returns the agent's event stream.
func (a *Agent) Events() <-chan Event {
	return a.emitter.Events()
}

// Registry exposes the tool registry for host-registered tools.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// Queue exposes the task queue.
func (a *Agent) Queue() *Queue {
	return a.queue
}

// Workspace returns the canonical workspace root.
func (a *Agent) Workspace() string {
	return a.workspace.Root()
}

// Stats returns the aggregate token statistics and total cost across every
// task this agent has run.
func (a *Agent) Stats() (TokenStatistics, float64) {
	return a.tracker.Stats(), a.tracker.TotalCost()
}

// ModelStats returns the per-model usage breakdown.
func (a *Agent) ModelStats() map[string]ModelTokenStats {
	return a.tracker.ModelStats()
}

// Close shuts the event stream down.
func (a *Agent) Close() {
	a.emitter.Close()
}

// WaitIdle blocks until the queue is empty or the context is done. It is a
// convenience for hosts that enqueue a batch and want to drain it.
func (a *Agent) WaitIdle(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if a.queue.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
