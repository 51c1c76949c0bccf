package activity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mscrnt/sentientos/internal/router"
	"github.com/mscrnt/sentientos/internal/router/health"
	"github.com/mscrnt/sentientos/internal/router/providers"
	"github.com/mscrnt/sentientos/internal/tool"
	"github.com/mscrnt/sentientos/internal/trace"
)

type fakeProvider struct {
	name    string
	content string
	err     error
}

func (f *fakeProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
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

func newTestDispatcher(t *testing.T, providerSet map[string]providers.Provider) *router.Dispatcher {
	t.Helper()
	traceLog, err := trace.Open(filepath.Join(t.TempDir(), "trace.jsonl"))
	if err != nil {
		t.Fatalf("trace.Open: %v", err)
	}
	return router.NewDispatcher(
		providerSet,
		health.NewRegistry(time.Minute, health.DefaultConfig()),
		nil,
		tool.NewRegistry(),
		tool.NewExecutor(tool.NewRegistry(), false, t.TempDir(), nil),
		traceLog,
		nil,
		0,
	)
}

func TestLLMObserver_UsesModelReplyWhenLongEnough(t *testing.T) {
	fake := &fakeProvider{name: "llama3-8b", content: "Check the disk I/O wait time on the primary volume"}
	d := newTestDispatcher(t, map[string]providers.Provider{"llama3-8b": fake})

	o := NewLLMObserver(d, time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	g, err := o.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if g == nil {
		t.Fatal("expected a goal")
	}
	if g.Text != fake.content {
		t.Errorf("expected model reply, got %q", g.Text)
	}
	if g.Source != SourceLLM {
		t.Errorf("expected source llm_observer, got %q", g.Source)
	}
}

func TestLLMObserver_FallsBackWhenDispatchFails(t *testing.T) {
	fake := &fakeProvider{name: "llama3-8b", err: errors.New("connection refused")}
	d := newTestDispatcher(t, map[string]providers.Provider{"llama3-8b": fake})

	o := NewLLMObserver(d, time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	g, err := o.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if g == nil {
		t.Fatal("expected a fallback goal")
	}
	found := false
	for _, fg := range fallbackGoals {
		if fg == g.Text {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a fallback goal, got %q", g.Text)
	}
}

func TestLLMObserver_RespectsInterval(t *testing.T) {
	o := NewLLMObserver(nil, time.Hour)
	g, err := o.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if g == nil {
		t.Fatal("expected first call to fire immediately")
	}

	g2, err := o.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if g2 != nil {
		t.Error("expected second call within interval to return nil")
	}
}
