// Package agent implements the conversation orchestrator: a bounded
// tool-use loop over a ModelClient, a priority task queue with a capped
// worker pool, and token/cost accounting.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/converge/llm"
)

// Task is a unit of work submitted to the agent.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Prompt    string    `json:"prompt"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTask creates a Task with a fresh ID.
func NewTask(prompt string) Task {
	return Task{
		ID:        uuid.New(),
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}
}

// WithContext returns a copy of the task carrying auxiliary context that is
// prepended to the prompt in the seed message.
func (t Task) WithContext(context string) Task {
	t.Context = context
	return t
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// TokenStatistics aggregates token usage across model turns.
// Total is always Input + Output.
type TokenStatistics struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AddUsage folds one model turn's usage into the statistics.
func (s TokenStatistics) AddUsage(u llm.Usage) TokenStatistics {
	return TokenStatistics{
		InputTokens:  s.InputTokens + u.InputTokens,
		OutputTokens: s.OutputTokens + u.OutputTokens,
		TotalTokens:  s.InputTokens + u.InputTokens + s.OutputTokens + u.OutputTokens,
	}
}

// CostDetails is the monetary cost attributed to a task or turn.
type CostDetails struct {
	Model      string  `json:"model"`
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
	Currency   string  `json:"currency"`
}

// Add accumulates another turn's cost. The model and currency of the
// receiver win when set; aggregates are per-task and single-model.
func (c CostDetails) Add(other CostDetails) CostDetails {
	out := CostDetails{
		Model:      c.Model,
		Currency:   c.Currency,
		InputCost:  c.InputCost + other.InputCost,
		OutputCost: c.OutputCost + other.OutputCost,
	}
	if out.Model == "" {
		out.Model = other.Model
	}
	if out.Currency == "" {
		out.Currency = other.Currency
	}
	out.TotalCost = out.InputCost + out.OutputCost
	return out
}

// TaskResult is the frozen outcome of a task.
type TaskResult struct {
	TaskID       uuid.UUID       `json:"task_id"`
	Status       TaskStatus      `json:"status"`
	Summary      string          `json:"summary"`
	Conversation []llm.Message   `json:"conversation"`
	TokenStats   TokenStatistics `json:"token_stats"`
	Cost         CostDetails     `json:"cost"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Error        string          `json:"error,omitempty"` // set iff Status == StatusFailed
}

// Priority orders queued tasks. Higher runs first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
)

// QueuedTask is a task waiting in the queue with its scheduling metadata.
type QueuedTask struct {
	Task       Task      `json:"task"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
