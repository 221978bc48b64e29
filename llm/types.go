// Package llm defines the conversation data model for a Converse-style LLM
// API, the ModelClient interface the agent core consumes, and the streaming
// reconstructor that folds wire events back into complete messages.
package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind is the discriminator tag for ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ResultStatus marks a tool result as successful or failed.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ToolUseBlock is a model-initiated tool invocation. ID is a per-invocation
// opaque token chosen by the model; Input is a JSON object conforming to the
// named tool's schema.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock delivers a completed tool's output back to the model.
// ToolUseID must equal the ID of a prior ToolUseBlock in the conversation.
type ToolResultBlock struct {
	ToolUseID string       `json:"tool_use_id"`
	Content   string       `json:"content"`
	Status    ResultStatus `json:"status"`
}

// ContentBlock is a tagged union representing one block of a message.
type ContentBlock struct {
	Kind       BlockKind        `json:"kind"`
	Text       string           `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
}

// TextBlock creates a text ContentBlock.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolUse creates a tool-use ContentBlock.
func ToolUse(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Kind:    BlockToolUse,
		ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input},
	}
}

// ToolResult creates a tool-result ContentBlock.
func ToolResult(toolUseID, content string, status ResultStatus) ContentBlock {
	return ContentBlock{
		Kind:       BlockToolResult,
		ToolResult: &ToolResultBlock{ToolUseID: toolUseID, Content: content, Status: status},
	}
}

// Message is the fundamental unit of conversation. Tool-result blocks appear
// only in user messages; tool-use blocks only in assistant messages.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage creates a user Message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage creates an assistant Message with a single text block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultsMessage creates the user Message that carries a turn's tool
// results back to the model, in the given order.
func ToolResultsMessage(results []ToolResultBlock) Message {
	blocks := make([]ContentBlock, len(results))
	for i := range results {
		r := results[i]
		blocks[i] = ContentBlock{Kind: BlockToolResult, ToolResult: &r}
	}
	return Message{Role: RoleUser, Content: blocks}
}

// TextContent returns the concatenation of all text blocks.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Kind == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses extracts all tool-use blocks in order of occurrence.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range m.Content {
		if block.Kind == BlockToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// StopReason is the model's declared reason for ending a turn.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage tracks token consumption for a single model turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewUsage builds a Usage whose total is input + output.
func NewUsage(input, output int) Usage {
	return Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Inference holds the model sampling parameters for a request.
type Inference struct {
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          *float64 `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// ConverseRequest is the input to both Converse and ConverseStream.
type ConverseRequest struct {
	ModelID   string           `json:"model_id"`
	Messages  []Message        `json:"messages"`
	System    []string         `json:"system,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Inference Inference        `json:"inference"`
}

// ConverseResponse is the output of a non-streaming model call.
type ConverseResponse struct {
	Message    Message    `json:"message"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// HasToolUse reports whether the response message contains tool-use blocks.
func (r *ConverseResponse) HasToolUse() bool {
	return len(r.Message.ToolUses()) > 0
}

// TextContent returns the concatenated text of the response message.
func (r *ConverseResponse) TextContent() string {
	return r.Message.TextContent()
}
