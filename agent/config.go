package agent

import (
	"fmt"
	"path/filepath"
	"time"
)

// DefaultMaxIterations is the hard cap on model turns per task. The cap is
// the loop's only termination guarantee against a model that keeps emitting
// tool calls; it is configurable but never disabled.
const DefaultMaxIterations = 10

// Permission is the registration policy for a tool.
type Permission string

const (
	PermissionAllow Permission = "allow"
	PermissionAsk   Permission = "ask" // treated as allow; interactive confirmation is the host's job
	PermissionDeny  Permission = "deny"
)

// ToolPermission configures whether a tool may be registered.
type ToolPermission struct {
	Policy     Permission `json:"policy"`
	Constraint string     `json:"constraint,omitempty"`
}

// Config is the plain configuration structure handed to New. Loading it
// from a file is the caller's concern.
type Config struct {
	// ModelID selects the model. Required.
	ModelID string

	// Inference parameters.
	MaxTokens     int
	Temperature   float64
	TopP          *float64
	StopSequences []string

	// SystemPrompt, when set, is prepended as system instructions.
	SystemPrompt string

	// WorkspaceDir is the absolute directory all filesystem tools are
	// confined to. Required.
	WorkspaceDir string

	// AllowedTools names the built-in tools to register. An unknown name
	// is a configuration error.
	AllowedTools []string

	// Pricing maps model IDs to per-1k token prices. Duplicate entries for
	// a model follow map semantics: last write wins.
	Pricing map[string]ModelPricing

	// ToolPermissions overrides registration per tool. Deny suppresses
	// registration; Ask and Allow both register.
	ToolPermissions map[string]ToolPermission

	// MaxIterations caps model turns per task. Defaults to 10.
	MaxIterations int

	// Streaming selects ConverseStream over Converse for model calls.
	Streaming bool

	// ParallelTools executes a turn's tool calls concurrently. Result
	// ordering in the follow-up message is preserved either way.
	ParallelTools bool

	// TaskTimeout bounds a task's wall clock. Zero means no limit.
	TaskTimeout time.Duration

	// BashTimeout overrides the execute_bash kill timer. Zero keeps the
	// tool default of 30 seconds.
	BashTimeout time.Duration
}

// ConfigError reports an invalid agent configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	return out
}

func (c *Config) validate() error {
	if c.ModelID == "" {
		return &ConfigError{Field: "model_id", Message: "required"}
	}
	if c.WorkspaceDir == "" {
		return &ConfigError{Field: "workspace_dir", Message: "required"}
	}
	if !filepath.IsAbs(c.WorkspaceDir) {
		return &ConfigError{Field: "workspace_dir", Message: fmt.Sprintf("must be absolute, got %q", c.WorkspaceDir)}
	}
	for model, pricing := range c.Pricing {
		if pricing.InputPer1K < 0 || pricing.OutputPer1K < 0 {
			return &ConfigError{Field: "pricing", Message: fmt.Sprintf("negative price for model %q", model)}
		}
	}
	return nil
}
