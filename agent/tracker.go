package agent

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/martinemde/converge/llm"
)

// ModelTokenStats is the per-model breakdown kept by the Tracker.
type ModelTokenStats struct {
	ModelID      string `json:"model_id"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Requests     int    `json:"requests"`
}

// Tracker accumulates token usage and cost across every task the agent
// runs. Counters are atomic; the per-model map takes a short lock.
type Tracker struct {
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	costMicros   atomic.Int64 // total cost in millionths of a currency unit

	mu     sync.Mutex
	models map[string]*ModelTokenStats
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{models: make(map[string]*ModelTokenStats)}
}

// Record folds one model turn into the aggregates.
func (t *Tracker) Record(model string, usage llm.Usage, cost CostDetails) {
	t.inputTokens.Add(int64(usage.InputTokens))
	t.outputTokens.Add(int64(usage.OutputTokens))
	t.costMicros.Add(int64(math.Round(cost.TotalCost * 1e6)))

	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.models[model]
	if !ok {
		stats = &ModelTokenStats{ModelID: model}
		t.models[model] = stats
	}
	stats.InputTokens += usage.InputTokens
	stats.OutputTokens += usage.OutputTokens
	stats.Requests++
}

// Stats returns the aggregate token statistics.
func (t *Tracker) Stats() TokenStatistics {
	input := int(t.inputTokens.Load())
	output := int(t.outputTokens.Load())
	return TokenStatistics{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// TotalCost returns the accumulated cost across all tasks.
func (t *Tracker) TotalCost() float64 {
	return float64(t.costMicros.Load()) / 1e6
}

// ModelStats returns a copy of the per-model breakdown.
func (t *Tracker) ModelStats() map[string]ModelTokenStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ModelTokenStats, len(t.models))
	for model, stats := range t.models {
		out[model] = *stats
	}
	return out
}
