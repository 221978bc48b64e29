package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/martinemde/converge/llm"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ModelID:      "test-model",
		WorkspaceDir: t.TempDir(),
		AllowedTools: []string{"fs_read", "fs_write"},
	}
}

func stubClient() *scriptedClient {
	return &scriptedClient{script: []func(llm.ConverseRequest) (*llm.ConverseResponse, error){
		textTurn("ok", llm.NewUsage(1, 1)),
	}}
}

func TestNewRejectsMissingModel(t *testing.T) {
	cfg := validConfig(t)
	cfg.ModelID = ""
	_, err := New(cfg, stubClient())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestNewRejectsRelativeWorkspace(t *testing.T) {
	cfg := validConfig(t)
	cfg.WorkspaceDir = "relative"
	if _, err := New(cfg, stubClient()); err == nil {
		t.Fatal("relative workspace accepted")
	}
}

func TestNewRejectsUnknownAllowedTool(t *testing.T) {
	cfg := validConfig(t)
	cfg.AllowedTools = []string{"fs_read", "teleport"}
	_, err := New(cfg, stubClient())
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "allowed_tools" {
		t.Fatalf("err = %v, want allowed_tools ConfigError", err)
	}
}

func TestNewRejectsNegativePricing(t *testing.T) {
	cfg := validConfig(t)
	cfg.Pricing = map[string]ModelPricing{"m": {InputPer1K: -1}}
	if _, err := New(cfg, stubClient()); err == nil {
		t.Fatal("negative pricing accepted")
	}
}

func TestNewRejectsNilClient(t *testing.T) {
	if _, err := New(validConfig(t), nil); err == nil {
		t.Fatal("nil client accepted")
	}
}

func TestDenySuppressesRegistration(t *testing.T) {
	cfg := validConfig(t)
	cfg.AllowedTools = []string{"fs_read", "fs_write", "execute_bash"}
	cfg.ToolPermissions = map[string]ToolPermission{
		"execute_bash": {Policy: PermissionDeny},
		"fs_write":     {Policy: PermissionAsk}, // ask registers like allow
	}

	a, err := New(cfg, stubClient())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	names := a.Registry().Names()
	want := []string{"fs_read", "fs_write"}
	if len(names) != len(want) {
		t.Fatalf("registered = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("registered = %v, want %v", names, want)
		}
	}
}

func TestAgentQueueEndToEnd(t *testing.T) {
	client := &scriptedClient{script: []func(llm.ConverseRequest) (*llm.ConverseResponse, error){
		textTurn("answer", llm.NewUsage(10, 3)),
	}}
	a := newTestAgent(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		_ = a.Run(ctx, 2)
		close(runDone)
	}()

	a.Enqueue(NewTask("first"), PriorityNormal)
	a.Enqueue(NewTask("second"), PriorityHigh)

	var results []TaskResult
	timeout := time.After(5 * time.Second)
	for len(results) < 2 {
		select {
		case r := <-a.Results():
			results = append(results, r)
		case <-timeout:
			t.Fatal("results never arrived")
		}
	}

	for _, r := range results {
		if r.Status != StatusCompleted || r.Summary != "answer" {
			t.Errorf("result = %+v", r)
		}
	}

	stats, _ := a.Stats()
	if stats.TotalTokens != 26 {
		t.Errorf("aggregate tokens = %d, want 26 across two tasks", stats.TotalTokens)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestAgentEventsCarryTaskLifecycle(t *testing.T) {
	client := stubClient()
	a := newTestAgent(t, client, nil)

	result := a.Execute(context.Background(), NewTask("emit events"))
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	a.Close()

	kinds := map[EventKind]bool{}
	for event := range a.Events() {
		kinds[event.Kind] = true
	}
	if !kinds[EventTaskStart] || !kinds[EventTaskEnd] || !kinds[EventAssistantTurn] {
		t.Errorf("event kinds = %v, want task lifecycle events", kinds)
	}
}

func TestAgentTaskTimeout(t *testing.T) {
	client := &scriptedClient{script: []func(llm.ConverseRequest) (*llm.ConverseResponse, error){
		func(llm.ConverseRequest) (*llm.ConverseResponse, error) {
			time.Sleep(300 * time.Millisecond)
			return textTurn("too late", llm.NewUsage(1, 1))(llm.ConverseRequest{})
		},
	}}
	a := newTestAgent(t, client, func(cfg *Config) {
		cfg.TaskTimeout = 50 * time.Millisecond
	})

	result := a.Execute(context.Background(), NewTask("slow"))
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed on task timeout", result.Status)
	}
	if result.Error == "" {
		t.Error("timed-out task must carry an error")
	}
}

func TestWaitIdle(t *testing.T) {
	a := newTestAgent(t, stubClient(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx, 1) }()

	a.Enqueue(NewTask("x"), PriorityNormal)
	if err := a.WaitIdle(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if a.Queue().Len() != 0 {
		t.Errorf("queue length = %d after WaitIdle", a.Queue().Len())
	}
}
