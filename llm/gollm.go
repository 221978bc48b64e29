package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmClient is a ModelClient backed by gollm. It translates the Converse
// data model into gollm prompts, classifies provider failures into the
// ModelError taxonomy, and applies a transport-level retry policy.
type GollmClient struct {
	provider string
	llm      gollm.LLM
	retry    RetryPolicy
}

// GollmOption configures a GollmClient.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	maxTokens   int
	temperature float64
	retry       RetryPolicy
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the provider API key. When empty, gollm reads it from the
// provider's environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithRetryPolicy overrides the default transport retry policy.
func WithRetryPolicy(p RetryPolicy) GollmOption {
	return func(c *gollmConfig) { c.retry = p }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmClient creates a GollmClient for the given provider and model.
func NewGollmClient(provider, model string, opts ...GollmOption) (*GollmClient, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry handled here, with our own policy
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llmInstance, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmClient{provider: provider, llm: llmInstance, retry: cfg.retry}, nil
}

// Converse sends a blocking request and returns the reconstructed response.
func (c *GollmClient) Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error) {
	prompt := c.translateRequest(req)
	c.applyInference(req)

	text, err := Retry(ctx, c.retry, func(ctx context.Context) (string, error) {
		out, genErr := c.llm.Generate(ctx, prompt)
		if genErr != nil {
			return "", c.translateError(genErr)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return c.buildResponse(req, text), nil
}

// ConverseStream sends a streaming request and emits wire events. When the
// underlying provider cannot stream, the full response is replayed as a
// stream with one delta per content block.
func (c *GollmClient) ConverseStream(ctx context.Context, req ConverseRequest) (<-chan StreamEvent, error) {
	prompt := c.translateRequest(req)
	c.applyInference(req)

	ch := make(chan StreamEvent, 64)

	if !c.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := c.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamEvent{Err: c.translateError(err)}
				return
			}
			c.emitResponse(ch, req, text)
		}()
		return ch, nil
	}

	stream, err := c.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, c.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Kind: EventBlockStart, Index: 0, Start: &BlockStart{Kind: BlockText}}

		var fullText strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Err: c.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			ch <- StreamEvent{Kind: EventBlockDelta, Index: 0, Delta: token.Text}
			fullText.WriteString(token.Text)
		}

		ch <- StreamEvent{Kind: EventBlockStop, Index: 0}

		text := fullText.String()
		stop := StopEndTurn
		if calls := c.parseToolCalls(text); len(calls) > 0 {
			// Tool calls arrived embedded in text; emit them as blocks so
			// the reconstructor sees the same shape as a native stream.
			for i, call := range calls {
				idx := i + 1
				ch <- StreamEvent{Kind: EventBlockStart, Index: idx, Start: &BlockStart{Kind: BlockToolUse, ID: call.ID, Name: call.Name}}
				ch <- StreamEvent{Kind: EventBlockDelta, Index: idx, Delta: string(call.Input)}
				ch <- StreamEvent{Kind: EventBlockStop, Index: idx}
			}
			stop = StopToolUse
		}

		ch <- StreamEvent{Kind: EventMessageStop, StopReason: stop}
		usage := c.estimateUsage(req, text)
		ch <- StreamEvent{Kind: EventUsage, Usage: &usage}
	}()

	return ch, nil
}

// emitResponse replays a complete response as a minimal event stream.
func (c *GollmClient) emitResponse(ch chan<- StreamEvent, req ConverseRequest, text string) {
	resp := c.buildResponse(req, text)
	for i, block := range resp.Message.Content {
		switch block.Kind {
		case BlockText:
			ch <- StreamEvent{Kind: EventBlockStart, Index: i, Start: &BlockStart{Kind: BlockText}}
			ch <- StreamEvent{Kind: EventBlockDelta, Index: i, Delta: block.Text}
			ch <- StreamEvent{Kind: EventBlockStop, Index: i}
		case BlockToolUse:
			ch <- StreamEvent{Kind: EventBlockStart, Index: i, Start: &BlockStart{Kind: BlockToolUse, ID: block.ToolUse.ID, Name: block.ToolUse.Name}}
			ch <- StreamEvent{Kind: EventBlockDelta, Index: i, Delta: string(block.ToolUse.Input)}
			ch <- StreamEvent{Kind: EventBlockStop, Index: i}
		}
	}
	ch <- StreamEvent{Kind: EventMessageStop, StopReason: resp.StopReason}
	ch <- StreamEvent{Kind: EventUsage, Usage: &resp.Usage}
}

// translateRequest flattens the Converse conversation into a gollm prompt.
func (c *GollmClient) translateRequest(req ConverseRequest) *gollm.Prompt {
	var parts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			for _, block := range msg.Content {
				switch block.Kind {
				case BlockText:
					parts = append(parts, block.Text)
				case BlockToolResult:
					prefix := "[Tool Result]"
					if block.ToolResult.Status == ResultError {
						prefix = "[Tool Error]"
					}
					parts = append(parts, prefix+": "+block.ToolResult.Content)
				}
			}
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, use := range msg.ToolUses() {
				parts = append(parts, fmt.Sprintf("[Assistant tool call %s]: %s(%s)", use.ID, use.Name, string(use.Input)))
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if system := strings.TrimSpace(strings.Join(req.System, "\n\n")); system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.Inference.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.Inference.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyInference applies per-request sampling parameters.
func (c *GollmClient) applyInference(req ConverseRequest) {
	if req.ModelID != "" {
		c.llm.SetOption("model", req.ModelID)
	}
	c.llm.SetOption("temperature", req.Inference.Temperature)
	if req.Inference.TopP != nil {
		c.llm.SetOption("top_p", *req.Inference.TopP)
	}
	if req.Inference.MaxTokens > 0 {
		c.llm.SetOption("max_tokens", req.Inference.MaxTokens)
	}
	if len(req.Inference.StopSequences) > 0 {
		c.llm.SetOption("stop", req.Inference.StopSequences)
	}
}

// buildResponse assembles a ConverseResponse from generated text, extracting
// any embedded tool calls.
func (c *GollmClient) buildResponse(req ConverseRequest, text string) *ConverseResponse {
	var content []ContentBlock
	calls := c.parseToolCalls(text)

	cleaned := c.stripToolCallJSON(text, calls)
	if cleaned != "" {
		content = append(content, TextBlock(cleaned))
	}
	for _, call := range calls {
		content = append(content, ContentBlock{Kind: BlockToolUse, ToolUse: &call})
	}
	if len(content) == 0 {
		content = []ContentBlock{TextBlock(text)}
	}

	stop := StopEndTurn
	if len(calls) > 0 {
		stop = StopToolUse
	}

	return &ConverseResponse{
		Message:    Message{Role: RoleAssistant, Content: content},
		StopReason: stop,
		Usage:      c.estimateUsage(req, text),
	}
}

// parseToolCalls extracts tool calls gollm providers return embedded in the
// response text.
func (c *GollmClient) parseToolCalls(text string) []ToolUseBlock {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolUseBlock, 0, len(rawCalls))
	for _, rc := range rawCalls {
		input := rc.Arguments
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		calls = append(calls, ToolUseBlock{
			ID:    "call_" + uuid.New().String()[:8],
			Name:  rc.Name,
			Input: input,
		})
	}
	return calls
}

// stripToolCallJSON removes the parsed tool-call JSON from the text.
func (c *GollmClient) stripToolCallJSON(text string, calls []ToolUseBlock) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError classifies a gollm failure into the ModelError taxonomy.
// gollm surfaces provider failures as flattened strings, so classification
// is by message content.
func (c *GollmClient) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid key"):
		return NewModelError(ErrAuth, msg, err)
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return NewModelError(ErrAuth, msg, err)
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found") ||
		strings.Contains(lower, "unknown model"):
		return NewModelError(ErrNotFound, msg, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return NewModelError(ErrRateLimited, msg, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection") ||
		strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return NewModelError(ErrTransport, msg, err)
	default:
		return NewModelError(ErrUnknown, msg, err)
	}
}

// estimateUsage approximates token counts when the provider does not report
// them through gollm's text interface.
func (c *GollmClient) estimateUsage(req ConverseRequest, text string) Usage {
	input := 0
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			switch block.Kind {
			case BlockText:
				input += len(block.Text) / 4
			case BlockToolResult:
				input += len(block.ToolResult.Content) / 4
			}
		}
	}
	if input == 0 {
		input = 10
	}
	return NewUsage(input, len(text)/4)
}
