package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBashSimpleCommand(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws)
	out := mustExecute(t, bash, `{"command":"echo hello"}`)
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q", out)
	}
}

func TestBashRunsInWorkspace(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws)
	out := mustExecute(t, bash, `{"command":"pwd"}`)
	if strings.TrimSpace(out) != ws.Root() {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(out), ws.Root())
	}
}

func TestBashShellMetacharacters(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "f.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	bash := NewBashTool(ws)
	out := mustExecute(t, bash, `{"command":"cat f.txt | wc -l"}`)
	if strings.TrimSpace(out) != "3" {
		t.Errorf("piped output = %q, want 3", out)
	}
}

func TestBashNonZeroExitReported(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws)
	out := mustExecute(t, bash, `{"command":"sh -c 'exit 3'"}`)
	if !strings.Contains(out, "[exit code: 3]") {
		t.Errorf("output = %q, want exit code note", out)
	}
}

func TestBashTimeout(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws).WithTimeout(200 * time.Millisecond)

	start := time.Now()
	_, err := bash.Execute(context.Background(), json.RawMessage(`{"command":"sleep 5"}`))
	elapsed := time.Since(start)

	wantKind(t, err, ErrTimeout)
	if !strings.Contains(err.Error(), "timeout after") {
		t.Errorf("error = %v, want timeout message", err)
	}
	if elapsed > 3*time.Second {
		t.Errorf("kill timer took %s", elapsed)
	}
}

func TestBashUnderTimeoutSucceeds(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws).WithTimeout(5 * time.Second)
	if _, err := bash.Execute(context.Background(), json.RawMessage(`{"command":"sleep 0.05"}`)); err != nil {
		t.Errorf("short command hit the kill timer: %v", err)
	}
}

func TestBashOutputCap(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := &BashTool{ws: ws, timeout: 10 * time.Second, maxOutput: 512}

	out := mustExecute(t, bash, `{"command":"yes x | head -c 4096"}`)
	if !strings.Contains(out, "[output truncated at 512 bytes]") {
		t.Errorf("missing truncation note in %q", out[len(out)-80:])
	}
	if len(out) > 1024 {
		t.Errorf("capped output is %d bytes", len(out))
	}
}

func TestBashEmptyCommand(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws)
	_, err := bash.Execute(context.Background(), json.RawMessage(`{"command":"   "}`))
	wantKind(t, err, ErrInvalidInput)
}

func TestBashMissingBinary(t *testing.T) {
	ws := newTestWorkspace(t)
	bash := NewBashTool(ws)
	_, err := bash.Execute(context.Background(), json.RawMessage(`{"command":"definitely-not-a-binary-xyz"}`))
	wantKind(t, err, ErrIO)
}

func TestTruncateOutput(t *testing.T) {
	if got := TruncateOutput("short", 100); got != "short" {
		t.Errorf("short output modified: %q", got)
	}

	long := strings.Repeat("a", 200) + strings.Repeat("z", 200)
	got := TruncateOutput(long, 100)
	if !strings.HasPrefix(got, strings.Repeat("a", 50)) {
		t.Error("head not preserved")
	}
	if !strings.HasSuffix(got, strings.Repeat("z", 50)) {
		t.Error("tail not preserved")
	}
	if !strings.Contains(got, "truncated") {
		t.Error("missing truncation note")
	}
}
