package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// EventKind identifies the type of a wire event.
type EventKind string

const (
	EventBlockStart  EventKind = "block_start"
	EventBlockDelta  EventKind = "block_delta"
	EventBlockStop   EventKind = "block_stop"
	EventMessageStop EventKind = "message_stop"
	EventUsage       EventKind = "usage"
)

// BlockStart describes the block being opened at an index. For tool-use
// blocks the invocation ID and tool name arrive here; the input JSON arrives
// as fragment deltas.
type BlockStart struct {
	Kind BlockKind `json:"kind"` // BlockText or BlockToolUse
	ID   string    `json:"id,omitempty"`
	Name string    `json:"name,omitempty"`
}

// StreamEvent is a single incremental event from a streaming response.
type StreamEvent struct {
	Kind       EventKind   `json:"kind"`
	Index      int         `json:"index,omitempty"`
	Start      *BlockStart `json:"start,omitempty"`
	Delta      string      `json:"delta,omitempty"` // text chunk or JSON fragment
	StopReason StopReason  `json:"stop_reason,omitempty"`
	Usage      *Usage      `json:"usage,omitempty"`
	Err        error       `json:"-"`
}

// openBlock accumulates one in-flight content block.
type openBlock struct {
	kind   BlockKind
	id     string
	name   string
	buf    strings.Builder
	input  json.RawMessage // parsed tool input, set at block_stop
	closed bool
}

// Reconstructor folds a stream of wire events into a finalized assistant
// message. It routes deltas by block index, so interleaved blocks are
// accepted; the only ordering it requires is that delta/stop for an index
// follow the start for that index. Any violation is a protocol error.
//
// Memory is bounded by the buffers of currently open blocks plus the
// finished blocks of the single message being assembled.
type Reconstructor struct {
	blocks     map[int]*openBlock
	stopReason StopReason
	usage      Usage
	usageSeen  bool
	stopped    bool
	malformed  []string

	// OnTextDelta, when set, receives every text-block delta as it arrives.
	// It is a display side channel; correctness never depends on it.
	OnTextDelta func(delta string)
}

// NewReconstructor creates an empty Reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{blocks: make(map[int]*openBlock)}
}

// Feed consumes one wire event. It returns a protocol ModelError if the
// event violates stream ordering or references an unknown block index.
func (r *Reconstructor) Feed(ev StreamEvent) error {
	if ev.Err != nil {
		return ev.Err
	}

	switch ev.Kind {
	case EventBlockStart:
		if r.stopped {
			return NewProtocolError("block_start at index %d after message_stop", ev.Index)
		}
		if ev.Start == nil {
			return NewProtocolError("block_start at index %d without block descriptor", ev.Index)
		}
		if _, exists := r.blocks[ev.Index]; exists {
			return NewProtocolError("duplicate block_start for index %d", ev.Index)
		}
		switch ev.Start.Kind {
		case BlockText:
			r.blocks[ev.Index] = &openBlock{kind: BlockText}
		case BlockToolUse:
			r.blocks[ev.Index] = &openBlock{kind: BlockToolUse, id: ev.Start.ID, name: ev.Start.Name}
		default:
			return NewProtocolError("block_start at index %d with unsupported kind %q", ev.Index, ev.Start.Kind)
		}

	case EventBlockDelta:
		block, exists := r.blocks[ev.Index]
		if !exists {
			return NewProtocolError("block_delta for unknown index %d", ev.Index)
		}
		if block.closed {
			return NewProtocolError("block_delta for stopped index %d", ev.Index)
		}
		block.buf.WriteString(ev.Delta)
		if block.kind == BlockText && r.OnTextDelta != nil {
			r.OnTextDelta(ev.Delta)
		}

	case EventBlockStop:
		block, exists := r.blocks[ev.Index]
		if !exists {
			return NewProtocolError("block_stop for unknown index %d", ev.Index)
		}
		if block.closed {
			return NewProtocolError("duplicate block_stop for index %d", ev.Index)
		}
		block.closed = true
		if block.kind == BlockToolUse {
			block.input = r.parseToolInput(block)
		}

	case EventMessageStop:
		if r.stopped {
			return NewProtocolError("duplicate message_stop")
		}
		r.stopped = true
		r.stopReason = ev.StopReason

	case EventUsage:
		if ev.Usage == nil {
			return NewProtocolError("usage event without usage payload")
		}
		// Last write wins if duplicated.
		r.usage = NewUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens)
		r.usageSeen = true

	default:
		return NewProtocolError("unsupported wire event kind %q", ev.Kind)
	}

	return nil
}

// Finalize assembles the reconstructed assistant message. Blocks are emitted
// in index order regardless of the order in which they were stopped. A
// tool-use block whose accumulated input is not valid JSON is emitted with an
// empty input object and its ID recorded in MalformedInputs.
func (r *Reconstructor) Finalize() (Message, StopReason, Usage, error) {
	if !r.stopped {
		return Message{}, "", Usage{}, NewProtocolError("stream ended without message_stop")
	}

	indexes := make([]int, 0, len(r.blocks))
	for idx, block := range r.blocks {
		if !block.closed {
			return Message{}, "", Usage{}, NewProtocolError("block at index %d was never stopped", idx)
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	content := make([]ContentBlock, 0, len(indexes))
	for _, idx := range indexes {
		block := r.blocks[idx]
		switch block.kind {
		case BlockText:
			content = append(content, TextBlock(block.buf.String()))
		case BlockToolUse:
			content = append(content, ToolUse(block.id, block.name, block.input))
		}
	}

	msg := Message{Role: RoleAssistant, Content: content}
	return msg, r.stopReason, r.usage, nil
}

// parseToolInput validates the accumulated JSON fragment. An empty buffer
// means the tool takes no arguments; invalid JSON degrades to an empty
// object and flags the invocation as malformed.
func (r *Reconstructor) parseToolInput(block *openBlock) json.RawMessage {
	raw := block.buf.String()
	if raw == "" {
		return json.RawMessage("{}")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		r.malformed = append(r.malformed, block.id)
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

// MalformedInputs returns the tool-use IDs whose input JSON failed to parse.
// The caller surfaces these as tool-side errors instead of executing them.
func (r *Reconstructor) MalformedInputs() []string {
	return r.malformed
}

// UsageSeen reports whether a usage event arrived on the stream.
func (r *Reconstructor) UsageSeen() bool {
	return r.usageSeen
}
