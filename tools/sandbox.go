package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the absolute directory beneath which all filesystem tool
// operations are confined. The root is canonicalized once at construction;
// every path argument is resolved against it and checked for containment.
type Workspace struct {
	root string
}

// NewWorkspace canonicalizes dir and returns the workspace. The directory
// must be an absolute path to an existing directory.
func NewWorkspace(dir string) (*Workspace, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("workspace dir must be absolute: %q", dir)
	}
	canonical, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("workspace dir: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("workspace dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace dir is not a directory: %q", dir)
	}
	return &Workspace{root: canonical}, nil
}

// Root returns the canonical workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve canonicalizes a tool path argument and verifies it stays inside
// the workspace. Relative paths are joined onto the root. For a path whose
// leaf does not exist yet, the nearest existing ancestor is canonicalized
// and the remainder appended, so write destinations are checked too.
func (w *Workspace) Resolve(tool, p string) (string, error) {
	if p == "" {
		p = "."
	}
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	canonical, err := canonicalize(candidate)
	if err != nil {
		return "", NewToolError(tool, ErrIO, "resolve %q: %v", p, err)
	}
	if !w.contains(canonical) {
		return "", NewToolError(tool, ErrPathEscape, "path escapes workspace: %q", p)
	}
	return canonical, nil
}

// Rel returns path relative to the workspace root when possible, for
// display in tool output.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (w *Workspace) contains(path string) bool {
	if path == w.root {
		return true
	}
	return strings.HasPrefix(path, w.root+string(filepath.Separator))
}

// canonicalize resolves all symlinks and dot segments in path. When the
// path does not fully exist, the nearest existing ancestor is resolved and
// the non-existing remainder appended unchanged.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := path
	var remainder []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			// Hit the filesystem root without finding an existing ancestor.
			return path, nil
		}
		remainder = append([]string{filepath.Base(dir)}, remainder...)
		dir = parent

		resolved, err = filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, remainder...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
}
