package activity

import (
	"path/filepath"
	"testing"
)

func TestQueue_InjectAndPoll(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "goals.jsonl"))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	if err := q.Inject(Goal{ID: "g1", Text: "check disk", Source: SourceQueue}); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if err := q.Inject(Goal{ID: "g2", Text: "check memory", Source: SourceQueue}); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	pending, err := q.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending goals, got %d", len(pending))
	}
}

func TestQueue_MarkProcessedIsIdempotentAndExcludesFromPoll(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "goals.jsonl"))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	if err := q.Inject(Goal{ID: "g1", Text: "a", Source: SourceQueue}); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if err := q.Inject(Goal{ID: "g2", Text: "b", Source: SourceQueue}); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	if err := q.MarkProcessed("g1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	// Calling again with the same ID must be a no-op, not an error.
	if err := q.MarkProcessed("g1"); err != nil {
		t.Fatalf("MarkProcessed (repeat): %v", err)
	}

	pending, err := q.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "g2" {
		t.Fatalf("expected only g2 pending, got %+v", pending)
	}
}

func TestQueue_PollMissingFileReturnsEmpty(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "nonexistent.jsonl"))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	pending, err := q.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending goals, got %d", len(pending))
	}
}
