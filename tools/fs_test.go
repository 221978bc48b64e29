package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustExecute(t *testing.T, tool Tool, args string) string {
	t.Helper()
	out, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s(%s): %v", tool.Name(), args, err)
	}
	return out
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var te *ToolError
	if !errors.As(err, &te) || te.Kind != kind {
		t.Fatalf("err = %v, want kind %s", err, kind)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)
	write := NewWriteFileTool(ws)
	read := NewReadFileTool(ws)

	content := "hello\nworld\n"
	mustExecute(t, write, fmt.Sprintf(`{"path":"a.txt","content":%q}`, content))

	if got := mustExecute(t, read, `{"path":"a.txt"}`); got != content {
		t.Errorf("read back %q, want %q", got, content)
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	ws := newTestWorkspace(t)
	write := NewWriteFileTool(ws)
	mustExecute(t, write, `{"path":"deep/nested/dir/f.txt","content":"x"}`)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "deep", "nested", "dir", "f.txt"))
	if err != nil || string(data) != "x" {
		t.Errorf("file on disk = %q, err = %v", data, err)
	}
}

func TestWriteRefusesEscape(t *testing.T) {
	ws := newTestWorkspace(t)
	write := NewWriteFileTool(ws)
	_, err := write.Execute(context.Background(), json.RawMessage(`{"path":"../evil.txt","content":"x"}`))
	wantKind(t, err, ErrPathEscape)

	if _, statErr := os.Stat(filepath.Join(filepath.Dir(ws.Root()), "evil.txt")); statErr == nil {
		t.Error("file was written outside the workspace")
	}
}

func TestReadNotFound(t *testing.T) {
	ws := newTestWorkspace(t)
	read := NewReadFileTool(ws)
	_, err := read.Execute(context.Background(), json.RawMessage(`{"path":"missing.txt"}`))
	wantKind(t, err, ErrNotFound)
}

func TestReadRefusesEscape(t *testing.T) {
	ws := newTestWorkspace(t)
	read := NewReadFileTool(ws)
	_, err := read.Execute(context.Background(), json.RawMessage(`{"path":"/etc/passwd"}`))
	wantKind(t, err, ErrPathEscape)
}

func TestReadSizeBoundary(t *testing.T) {
	ws := newTestWorkspace(t)
	read := NewReadFileTool(ws)

	atLimit := bytes.Repeat([]byte("a"), MaxReadSize)
	if err := os.WriteFile(filepath.Join(ws.Root(), "limit.txt"), atLimit, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := mustExecute(t, read, `{"path":"limit.txt"}`); len(got) != MaxReadSize {
		t.Errorf("read %d bytes, want %d", len(got), MaxReadSize)
	}

	overLimit := bytes.Repeat([]byte("a"), MaxReadSize+1)
	if err := os.WriteFile(filepath.Join(ws.Root(), "over.txt"), overLimit, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := read.Execute(context.Background(), json.RawMessage(`{"path":"over.txt"}`))
	wantKind(t, err, ErrTooLarge)
}

func TestReadRejectsNonUTF8(t *testing.T) {
	ws := newTestWorkspace(t)
	read := NewReadFileTool(ws)
	if err := os.WriteFile(filepath.Join(ws.Root(), "bin.dat"), []byte{0xff, 0xfe, 0x00, 0x80}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := read.Execute(context.Background(), json.RawMessage(`{"path":"bin.dat"}`))
	wantKind(t, err, ErrNotUTF8)
}

func TestListDirectory(t *testing.T) {
	ws := newTestWorkspace(t)
	list := NewListDirTool(ws)

	if err := os.WriteFile(filepath.Join(ws.Root(), "b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(ws.Root(), "adir"), 0o755); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, list, `{}`)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2 entries", lines)
	}
	if lines[0] != "[dir] adir" || lines[1] != "[file] b.txt" {
		t.Errorf("listing = %v", lines)
	}
}

func TestListDefaultsToRoot(t *testing.T) {
	ws := newTestWorkspace(t)
	list := NewListDirTool(ws)
	if out := mustExecute(t, list, `{}`); out != "(empty directory)" {
		t.Errorf("empty workspace listing = %q", out)
	}
}

func TestListNotADirectory(t *testing.T) {
	ws := newTestWorkspace(t)
	list := NewListDirTool(ws)
	if err := os.WriteFile(filepath.Join(ws.Root(), "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := list.Execute(context.Background(), json.RawMessage(`{"path":"f.txt"}`))
	wantKind(t, err, ErrNotDirectory)
}

func TestListNotFound(t *testing.T) {
	ws := newTestWorkspace(t)
	list := NewListDirTool(ws)
	_, err := list.Execute(context.Background(), json.RawMessage(`{"path":"nope"}`))
	wantKind(t, err, ErrNotFound)
}
