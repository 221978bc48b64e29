package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/martinemde/converge/llm"
	"github.com/martinemde/converge/tools"
)

// Executor runs a single task through the bounded tool-use loop: issue a
// model call, dispatch any tool invocations, append the results as a user
// message, and repeat until the model answers in plain text or the
// iteration cap is reached.
type Executor struct {
	client     llm.ModelClient
	registry   *tools.Registry
	accountant *Accountant
	tracker    *Tracker
	emitter    *EventEmitter
	config     Config
}

// NewExecutor wires an executor. Most callers construct an Agent instead.
func NewExecutor(config Config, client llm.ModelClient, registry *tools.Registry, accountant *Accountant, tracker *Tracker, emitter *EventEmitter) *Executor {
	return &Executor{
		client:     client,
		registry:   registry,
		accountant: accountant,
		tracker:    tracker,
		emitter:    emitter,
		config:     config.withDefaults(),
	}
}

// Execute drives the task to completion and returns its frozen result.
// Tool failures are delivered back to the model as error results and never
// abort the loop; only model-client failures and an expired TaskTimeout
// fail the task.
func (e *Executor) Execute(ctx context.Context, task Task) TaskResult {
	startedAt := time.Now()

	if e.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.TaskTimeout)
		defer cancel()
	}

	e.emitter.Emit(EventTaskStart, task.ID, map[string]any{"prompt": task.Prompt})

	conversation := []llm.Message{seedMessage(task)}
	var stats TokenStatistics
	var cost CostDetails
	lastText := ""

	finish := func(status TaskStatus, summary, errMsg string) TaskResult {
		result := TaskResult{
			TaskID:       task.ID,
			Status:       status,
			Summary:      summary,
			Conversation: conversation,
			TokenStats:   stats,
			Cost:         cost,
			StartedAt:    startedAt,
			FinishedAt:   time.Now(),
			Error:        errMsg,
		}
		e.emitter.Emit(EventTaskEnd, task.ID, map[string]any{
			"status":  string(status),
			"summary": summary,
		})
		return result
	}

	toolDefs := e.toolDefinitions()

	for iteration := 0; iteration < e.config.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return e.interrupted(ctx, finish, lastText)
		}

		req := llm.ConverseRequest{
			ModelID:  e.config.ModelID,
			Messages: conversation,
			Tools:    toolDefs,
			Inference: llm.Inference{
				MaxTokens:     e.config.MaxTokens,
				Temperature:   e.config.Temperature,
				TopP:          e.config.TopP,
				StopSequences: e.config.StopSequences,
			},
		}
		if e.config.SystemPrompt != "" {
			req.System = []string{e.config.SystemPrompt}
		}

		message, _, usage, malformed, err := e.converse(ctx, task, req)
		if err != nil {
			if ctx.Err() != nil {
				return e.interrupted(ctx, finish, lastText)
			}
			e.emitter.Emit(EventError, task.ID, map[string]any{"error": err.Error()})
			return finish(StatusFailed, lastText, err.Error())
		}

		conversation = append(conversation, message)
		lastText = message.TextContent()

		stats = stats.AddUsage(usage)
		turnCost := e.accountant.Cost(e.config.ModelID, usage)
		cost = cost.Add(turnCost)
		e.tracker.Record(e.config.ModelID, usage, turnCost)

		e.emitter.Emit(EventAssistantTurn, task.ID, map[string]any{
			"text":       lastText,
			"tool_calls": len(message.ToolUses()),
		})

		// The model call is a suspension point; observe cancellation that
		// landed while it was in flight.
		if ctx.Err() != nil {
			return e.interrupted(ctx, finish, lastText)
		}

		uses := message.ToolUses()
		if len(uses) == 0 {
			return finish(StatusCompleted, summaryText(lastText), "")
		}

		results, ok := e.dispatchTools(ctx, task, uses, malformed)
		if !ok {
			return e.interrupted(ctx, finish, lastText)
		}
		conversation = append(conversation, llm.ToolResultsMessage(results))
	}

	// The model was still asking for tools when the cap hit. That is a
	// normal completion with a note, not a failure.
	summary := summaryText(lastText) +
		fmt.Sprintf("\n\n[note: iteration cap of %d model turns reached]", e.config.MaxIterations)
	e.emitter.Emit(EventWarning, task.ID, map[string]any{
		"message": fmt.Sprintf("iteration cap of %d reached", e.config.MaxIterations),
	})
	return finish(StatusCompleted, summary, "")
}

// converse issues one model turn, reconstructing the message from the event
// stream when streaming is enabled. The returned slice lists tool-use IDs
// whose input JSON was malformed on the wire.
func (e *Executor) converse(ctx context.Context, task Task, req llm.ConverseRequest) (llm.Message, llm.StopReason, llm.Usage, []string, error) {
	if !e.config.Streaming {
		resp, err := e.client.Converse(ctx, req)
		if err != nil {
			return llm.Message{}, "", llm.Usage{}, nil, err
		}
		return resp.Message, resp.StopReason, resp.Usage, nil, nil
	}

	events, err := e.client.ConverseStream(ctx, req)
	if err != nil {
		return llm.Message{}, "", llm.Usage{}, nil, err
	}

	rec := llm.NewReconstructor()
	rec.OnTextDelta = func(delta string) {
		e.emitter.Emit(EventTextDelta, task.ID, map[string]any{"delta": delta})
	}

	for event := range events {
		if err := rec.Feed(event); err != nil {
			// Drain the channel so the producer goroutine can exit.
			for range events {
			}
			return llm.Message{}, "", llm.Usage{}, nil, err
		}
	}

	message, stop, usage, err := rec.Finalize()
	if err != nil {
		return llm.Message{}, "", llm.Usage{}, nil, err
	}
	return message, stop, usage, rec.MalformedInputs(), nil
}

// dispatchTools executes a turn's tool calls. Results are returned in the
// order the calls appeared in the assistant message regardless of execution
// order. ok is false when cancellation interrupted the dispatch.
func (e *Executor) dispatchTools(ctx context.Context, task Task, uses []llm.ToolUseBlock, malformed []string) ([]llm.ToolResultBlock, bool) {
	malformedIDs := make(map[string]bool, len(malformed))
	for _, id := range malformed {
		malformedIDs[id] = true
	}

	if e.config.ParallelTools && len(uses) > 1 {
		results := make([]llm.ToolResultBlock, len(uses))
		var wg sync.WaitGroup
		for i, use := range uses {
			wg.Add(1)
			go func(idx int, use llm.ToolUseBlock) {
				defer wg.Done()
				results[idx] = e.dispatchOne(ctx, task, use, malformedIDs[use.ID])
			}(i, use)
		}
		wg.Wait()
		if ctx.Err() != nil {
			return nil, false
		}
		return results, true
	}

	results := make([]llm.ToolResultBlock, 0, len(uses))
	for _, use := range uses {
		if ctx.Err() != nil {
			return nil, false
		}
		results = append(results, e.dispatchOne(ctx, task, use, malformedIDs[use.ID]))
	}
	return results, true
}

// dispatchOne runs a single tool call. Every failure becomes an error
// result the model can observe and react to.
func (e *Executor) dispatchOne(ctx context.Context, task Task, use llm.ToolUseBlock, malformed bool) llm.ToolResultBlock {
	e.emitter.Emit(EventToolCallStart, task.ID, map[string]any{
		"tool":    use.Name,
		"call_id": use.ID,
	})

	if malformed {
		msg := fmt.Sprintf("%s: tool input was not valid JSON", use.Name)
		e.emitter.Emit(EventToolCallEnd, task.ID, map[string]any{"call_id": use.ID, "error": msg})
		return llm.ToolResultBlock{ToolUseID: use.ID, Content: msg, Status: llm.ResultError}
	}

	output, err := e.registry.Execute(ctx, use.Name, use.Input)
	if err != nil {
		e.emitter.Emit(EventToolCallEnd, task.ID, map[string]any{"call_id": use.ID, "error": err.Error()})
		return llm.ToolResultBlock{ToolUseID: use.ID, Content: err.Error(), Status: llm.ResultError}
	}

	// The event carries the full output; the model sees the capped form.
	e.emitter.Emit(EventToolCallEnd, task.ID, map[string]any{"call_id": use.ID, "output": output})
	return llm.ToolResultBlock{
		ToolUseID: use.ID,
		Content:   tools.TruncateOutput(output, tools.DefaultResultLimit),
		Status:    llm.ResultSuccess,
	}
}

// interrupted maps a context failure to the task outcome: a deadline means
// the task timed out (Failed); plain cancellation preserves the partial
// conversation under StatusCancelled.
func (e *Executor) interrupted(ctx context.Context, finish func(TaskStatus, string, string) TaskResult, lastText string) TaskResult {
	if ctx.Err() == context.DeadlineExceeded {
		msg := "task timed out"
		if e.config.TaskTimeout > 0 {
			msg = fmt.Sprintf("task timed out after %s", e.config.TaskTimeout)
		}
		return finish(StatusFailed, lastText, msg)
	}
	return finish(StatusCancelled, lastText, "")
}

func (e *Executor) toolDefinitions() []llm.ToolDefinition {
	defs := e.registry.Definitions()
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return out
}

// seedMessage builds the conversation seed: one user message whose single
// text block carries the context (when present) ahead of the prompt.
func seedMessage(task Task) llm.Message {
	text := task.Prompt
	if task.Context != "" {
		text = task.Context + "\n\n---\n\n" + task.Prompt
	}
	return llm.UserMessage(text)
}

// summaryText normalizes an empty final answer.
func summaryText(text string) string {
	if text == "" {
		return "Task completed"
	}
	return text
}
