package agent

import (
	"log/slog"
	"sync"

	"github.com/martinemde/converge/llm"
)

// ModelPricing is the per-1k-token price of a model.
type ModelPricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
	Currency    string  `json:"currency"`
}

// Accountant converts token counts into monetary cost from a read-only
// pricing table. A model absent from the table contributes zero cost and a
// one-time warning.
type Accountant struct {
	pricing map[string]ModelPricing

	mu     sync.Mutex
	warned map[string]bool
}

// NewAccountant creates an Accountant over the given pricing table. The
// table is copied; later mutation of the argument has no effect.
func NewAccountant(pricing map[string]ModelPricing) *Accountant {
	table := make(map[string]ModelPricing, len(pricing))
	for model, p := range pricing {
		if p.Currency == "" {
			p.Currency = "USD"
		}
		table[model] = p
	}
	return &Accountant{pricing: table, warned: make(map[string]bool)}
}

// Cost prices one turn's usage on the given model. Intermediate sums are
// double precision with no rounding.
func (a *Accountant) Cost(model string, usage llm.Usage) CostDetails {
	pricing, ok := a.pricing[model]
	if !ok {
		a.warnOnce(model)
		return CostDetails{Model: model, Currency: "USD"}
	}

	inputCost := float64(usage.InputTokens) / 1000 * pricing.InputPer1K
	outputCost := float64(usage.OutputTokens) / 1000 * pricing.OutputPer1K
	return CostDetails{
		Model:      model,
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  inputCost + outputCost,
		Currency:   pricing.Currency,
	}
}

func (a *Accountant) warnOnce(model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.warned[model] {
		return
	}
	a.warned[model] = true
	slog.Warn("no pricing configured for model, cost will read zero", "model", model)
}
