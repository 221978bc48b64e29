package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

const (
	// GrepMaxResults caps the number of matching lines grep returns.
	GrepMaxResults = 100

	// FindMaxResults caps the number of paths find returns.
	FindMaxResults = 1000

	// grepMatchTimeout bounds each line match so a pathological
	// model-supplied pattern cannot stall the loop.
	grepMatchTimeout = time.Second
)

// GrepTool searches file contents under the workspace with a regex.
type GrepTool struct {
	ws *Workspace
}

// NewGrepTool creates the grep tool.
func NewGrepTool(ws *Workspace) *GrepTool {
	return &GrepTool{ws: ws}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search file contents using a regex pattern. Returns matching lines as path:line:text."
}

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regex pattern to search for.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory to search. Default: workspace root.",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}

	re, err := regexp2.Compile(in.Pattern, regexp2.None)
	if err != nil {
		return "", NewToolError(t.Name(), ErrBadRegex, "invalid regex %q: %v", in.Pattern, err)
	}
	re.MatchTimeout = grepMatchTimeout

	resolved, err := t.ws.Resolve(t.Name(), in.Path)
	if err != nil {
		return "", err
	}

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() != "." && strings.HasPrefix(d.Name(), ".") && path != resolved {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(matches) >= GrepMaxResults {
			truncated = true
			return filepath.SkipAll
		}

		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		for lineNo, line := range strings.Split(string(data), "\n") {
			ok, matchErr := re.MatchString(line)
			if matchErr != nil || !ok {
				continue
			}
			matches = append(matches, fmt.Sprintf("%s:%d:%s", t.ws.Rel(path), lineNo+1, line))
			if len(matches) >= GrepMaxResults {
				truncated = true
				break
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", NewToolError(t.Name(), ErrIO, "search failed: %v", walkErr)
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n[results capped at %d matches]", GrepMaxResults)
	}
	return out, nil
}

// FindTool locates files by name pattern under the workspace.
type FindTool struct {
	ws *Workspace
}

// NewFindTool creates the find tool.
func NewFindTool(ws *Workspace) *FindTool {
	return &FindTool{ws: ws}
}

func (t *FindTool) Name() string { return "find" }

func (t *FindTool) Description() string {
	return "Find files whose name matches a glob pattern. Returns matching paths."
}

func (t *FindTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Filename glob pattern, e.g. \"*.go\".",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search. Default: workspace root.",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *FindTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid arguments: %v", err)
	}

	if _, err := filepath.Match(in.Pattern, "probe"); err != nil {
		return "", NewToolError(t.Name(), ErrInvalidInput, "invalid glob pattern %q: %v", in.Pattern, err)
	}

	resolved, err := t.ws.Resolve(t.Name(), in.Path)
	if err != nil {
		return "", err
	}

	var found []string
	walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(found) >= FindMaxResults {
			return filepath.SkipAll
		}
		matched, _ := filepath.Match(in.Pattern, d.Name())
		if matched {
			found = append(found, t.ws.Rel(path))
		}
		return nil
	})
	if walkErr != nil {
		return "", NewToolError(t.Name(), ErrIO, "find failed: %v", walkErr)
	}

	if len(found) == 0 {
		return "No files matched the pattern.", nil
	}
	return strings.Join(found, "\n"), nil
}
