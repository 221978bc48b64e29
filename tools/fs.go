package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxReadSize is the fs_read file-size cap, checked against the reported
// size before reading.
const MaxReadSize = 10 * 1024 * 1024

// ReadFileTool reads a UTF-8 file from the workspace.
type ReadFileTool struct {
	ws *Workspace
}

// NewReadFileTool creates the fs_read tool.
func NewReadFileTool(ws *Workspace) *ReadFileTool {
	return &ReadFileTool{ws: ws}
}

func (t *ReadFileTool) Name() string { return "fs_read" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file in the workspace. Returns the full UTF-8 text."
}

func (t *ReadFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace or absolute within it.",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}

	resolved, err := t.ws.Resolve(t.Name(), in.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(t.Name(), ErrNotFound, "file not found: %s", in.Path)
		}
		return "", NewToolError(t.Name(), ErrIO, "stat %s: %v", in.Path, err)
	}
	if info.Size() > MaxReadSize {
		return "", NewToolError(t.Name(), ErrTooLarge, "file too large: %d bytes (limit %d)", info.Size(), MaxReadSize)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", NewToolError(t.Name(), ErrIO, "read %s: %v", in.Path, err)
	}
	if !utf8.Valid(data) {
		return "", NewToolError(t.Name(), ErrNotUTF8, "file is not valid UTF-8: %s", in.Path)
	}
	return string(data), nil
}

// WriteFileTool writes a file inside the workspace, creating parent
// directories as needed.
type WriteFileTool struct {
	ws *Workspace
}

// NewWriteFileTool creates the fs_write tool.
func NewWriteFileTool(ws *Workspace) *WriteFileTool {
	return &WriteFileTool{ws: ws}
}

func (t *WriteFileTool) Name() string { return "fs_write" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace. Creates parent directories if needed."
}

func (t *WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to write, relative to the workspace or absolute within it.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The full file content to write.",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}

	resolved, err := t.ws.Resolve(t.Name(), in.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", NewToolError(t.Name(), ErrIO, "create parent directory for %s: %v", in.Path, err)
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return "", NewToolError(t.Name(), ErrIO, "write %s: %v", in.Path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), t.ws.Rel(resolved)), nil
}

// ListDirTool lists directory entries with a type tag.
type ListDirTool struct {
	ws *Workspace
}

// NewListDirTool creates the fs_list tool.
func NewListDirTool(ws *Workspace) *ListDirTool {
	return &ListDirTool{ws: ws}
}

func (t *ListDirTool) Name() string { return "fs_list" }

func (t *ListDirTool) Description() string {
	return "List files and directories at a path in the workspace. Defaults to the workspace root."
}

func (t *ListDirTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list. Default: \".\"",
			},
		},
		"required": []string{},
	}
}

func (t *ListDirTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}
	if in.Path == "" {
		in.Path = "."
	}

	resolved, err := t.ws.Resolve(t.Name(), in.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(t.Name(), ErrNotFound, "path not found: %s", in.Path)
		}
		return "", NewToolError(t.Name(), ErrIO, "stat %s: %v", in.Path, err)
	}
	if !info.IsDir() {
		return "", NewToolError(t.Name(), ErrNotDirectory, "not a directory: %s", in.Path)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", NewToolError(t.Name(), ErrIO, "list %s: %v", in.Path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sb strings.Builder
	for i, entry := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		tag := "file"
		if entry.IsDir() {
			tag = "dir"
		}
		fmt.Fprintf(&sb, "[%s] %s", tag, entry.Name())
	}
	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}
