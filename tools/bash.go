package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultBashTimeout is the execute_bash kill-timer default.
	DefaultBashTimeout = 30 * time.Second

	// MaxBashOutput caps combined stdout/stderr; overflow truncates.
	MaxBashOutput = 1024 * 1024

	// maxCommandLength rejects absurd commands before spawning anything.
	maxCommandLength = 10000
)

// shellMetacharacters force execution through the platform shell: pipes,
// redirects, logical operators, globs, quoting, expansion.
const shellMetacharacters = "|&;<>()$`\"'*?[]{}~\n"

// BashTool executes a shell command inside the workspace with a kill timer
// and a bounded output capture.
type BashTool struct {
	ws        *Workspace
	timeout   time.Duration
	maxOutput int
}

// NewBashTool creates the execute_bash tool with the default timeout.
func NewBashTool(ws *Workspace) *BashTool {
	return &BashTool{ws: ws, timeout: DefaultBashTimeout, maxOutput: MaxBashOutput}
}

// WithTimeout overrides the kill-timer duration.
func (t *BashTool) WithTimeout(d time.Duration) *BashTool {
	if d > 0 {
		t.timeout = d
	}
	return t
}

func (t *BashTool) Name() string { return "execute_bash" }

func (t *BashTool) Description() string {
	return "Execute a shell command in the workspace. Returns combined stdout/stderr; non-zero exit codes are reported in the output."
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command to run.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return "", NewToolError(t.Name(), ErrInvalidInput, "command cannot be empty")
	}
	if len(in.Command) > maxCommandLength {
		return "", NewToolError(t.Name(), ErrInvalidInput, "command exceeds %d characters", maxCommandLength)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := t.buildCommand(ctx, in.Command)
	cmd.Dir = t.ws.Root()

	// Own process group so the kill timer can take down shell children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	capture := &cappedBuffer{max: t.maxOutput}
	cmd.Stdout = capture
	cmd.Stderr = capture

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return "", NewToolError(t.Name(), ErrTimeout, "timeout after %s", t.timeout)
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return "", NewToolError(t.Name(), ErrIO, "command failed to start: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}

	var sb strings.Builder
	sb.WriteString(capture.String())
	if capture.truncated {
		fmt.Fprintf(&sb, "\n[output truncated at %d bytes]", t.maxOutput)
	}
	if exitCode != 0 {
		fmt.Fprintf(&sb, "\n[exit code: %d]", exitCode)
	}
	return sb.String(), nil
}

// buildCommand routes through the platform shell only when the command
// contains shell metacharacters; simple commands run with argv split.
func (t *BashTool) buildCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/c", command)
	}
	if strings.ContainsAny(command, shellMetacharacters) {
		return exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}
	parts := strings.Fields(command)
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}

// cappedBuffer captures at most max bytes; further writes are accepted but
// dropped, and the buffer is marked truncated. Stdout and stderr share one instance, so writes are
// serialized.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
