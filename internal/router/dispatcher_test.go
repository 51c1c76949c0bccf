package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mscrnt/sentientos/internal/condition"
	"github.com/mscrnt/sentientos/internal/router/health"
	"github.com/mscrnt/sentientos/internal/router/providers"
	"github.com/mscrnt/sentientos/internal/tool"
	"github.com/mscrnt/sentientos/internal/trace"
)

// fakeProvider answers every Chat call with a fixed response or error,
// recording how many times it was called.
type fakeProvider struct {
	name    string
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{Content: f.content, Model: f.name}, nil
}

func (f *fakeProvider) TestConnection(_ context.Context) error { return nil }
func (f *fakeProvider) Name() string                           { return f.name }
func (f *fakeProvider) ListModels(_ context.Context) ([]providers.ModelInfo, error) {
	return nil, nil
}

func newTestDispatcher(t *testing.T, providerSet map[string]providers.Provider) *Dispatcher {
	t.Helper()
	traceLog, err := trace.Open(filepath.Join(t.TempDir(), "trace.jsonl"))
	if err != nil {
		t.Fatalf("trace.Open: %v", err)
	}
	registry := tool.NewRegistry()
	for _, id := range []string{"disk_info", "memory_usage", "process_list", "network_status", "service_manager"} {
		if err := registry.Register(tool.Tool{
			ID:              id,
			DisplayName:     id,
			CommandTemplate: "true",
			TimeoutSeconds:  5,
		}); err != nil {
			t.Fatalf("registry.Register(%s): %v", id, err)
		}
	}
	executor := tool.NewExecutor(registry, false, t.TempDir(), nil)
	return NewDispatcher(
		providerSet,
		health.NewRegistry(time.Minute, health.DefaultConfig()),
		nil,
		registry,
		executor,
		traceLog,
		nil,
		0,
	)
}

func TestDispatch_PureQuery(t *testing.T) {
	fake := &fakeProvider{name: "llama3-8b", content: "there is plenty of disk space"}
	d := newTestDispatcher(t, map[string]providers.Provider{"llama3-8b": fake})

	result, err := d.Dispatch(context.Background(), "What is the current state of the system?")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.HybridIntent != PureQuery {
		t.Errorf("expected PureQuery, got %s", result.HybridIntent)
	}
	if result.Answer != "there is plenty of disk space" {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if fake.calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", fake.calls)
	}
}

func TestDispatch_PureAction(t *testing.T) {
	d := newTestDispatcher(t, nil)

	result, err := d.Dispatch(context.Background(), "run a check on disk usage")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.HybridIntent != PureAction {
		t.Errorf("expected PureAction, got %s", result.HybridIntent)
	}
	if result.ToolResult == nil || result.ToolResult.ToolID != "disk_info" {
		t.Errorf("expected disk_info tool result, got %+v", result.ToolResult)
	}
}

func TestDispatch_FailsOverToOfflineFallback(t *testing.T) {
	primary := &fakeProvider{name: "llama3-8b", err: errors.New("connection refused")}
	fallback := &fakeProvider{name: "phi2-local", content: "fallback answer"}
	d := newTestDispatcher(t, map[string]providers.Provider{
		"llama3-8b":  primary,
		"phi2-local": fallback,
	})
	d.OfflineFallback = []string{"phi2-local"}

	result, err := d.Dispatch(context.Background(), "What is the current state of the system?")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.ModelUsed != "phi2-local" {
		t.Errorf("expected fallback model to answer, got %q", result.ModelUsed)
	}
}

func TestDispatch_AllModelsFailed(t *testing.T) {
	primary := &fakeProvider{name: "llama3-8b", err: errors.New("timeout")}
	d := newTestDispatcher(t, map[string]providers.Provider{"llama3-8b": primary})

	_, err := d.Dispatch(context.Background(), "What is the current state of the system?")
	if err == nil {
		t.Fatal("expected an error when every candidate fails")
	}
	var allFailed *AllModelsFailedError
	if !errors.As(err, &allFailed) {
		t.Errorf("expected AllModelsFailedError, got %T: %v", err, err)
	}
}

func TestDispatch_QueryThenActionRunsMatchedCondition(t *testing.T) {
	fake := &fakeProvider{name: "llama3-8b", content: "disk usage is critically high"}
	d := newTestDispatcher(t, map[string]providers.Provider{"llama3-8b": fake})

	conditionsYAML := `
conditions:
  - name: disk_critical
    description: disk usage reported critical
    pattern:
      type: contains
      keywords: ["critically high"]
    tool: disk_info
    priority: 1
`
	path := filepath.Join(t.TempDir(), "conditions.yaml")
	if err := os.WriteFile(path, []byte(conditionsYAML), 0o644); err != nil {
		t.Fatalf("write conditions file: %v", err)
	}
	matcher, err := condition.Load(path)
	if err != nil {
		t.Fatalf("condition.Load: %v", err)
	}
	d.Conditions = matcher

	result, err := d.Dispatch(context.Background(), "Explain the disk usage, then clean up old logs")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.HybridIntent != QueryThenAction {
		t.Fatalf("expected QueryThenAction, got %s", result.HybridIntent)
	}
	if len(result.ConditionsMatched) != 1 || result.ConditionsMatched[0] != "disk_critical" {
		t.Errorf("expected disk_critical condition match, got %v", result.ConditionsMatched)
	}
	if result.ToolResult == nil || result.ToolResult.ToolID != "disk_info" {
		t.Errorf("expected disk_info tool execution, got %+v", result.ToolResult)
	}
}
