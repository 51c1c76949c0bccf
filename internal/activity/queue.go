// Package activity implements the cooperative goal loop: a single-threaded
// ticker that drains injected goals, turns each into a shell command by
// keyword, executes it under a bounded timeout, shapes a reward from the
// result, and appends one line to the day's activity log. A heartbeat
// ticker injects a synthetic health-check goal on its own cadence, and an
// optional LLM observer contributes a third stream of goals.
package activity

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mscrnt/sentientos/internal/logging"
	"github.com/mscrnt/sentientos/internal/metrics"
)

var log = logging.For("activity")

// Source identifies what produced a goal.
type Source string

const (
	SourceQueue     Source = "queue"
	SourceHeartbeat Source = "heartbeat"
	SourceLLM       Source = "llm_observer"
	SourceRLPolicy  Source = "rl_policy"
)

// Priority is the goal's scheduling priority, stored in the queue file but
// not used by the loop (goals are drained in file order) and not written
// to the activity log.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Goal is one line of the goal queue file.
type Goal struct {
	ID         string          `json:"id"`
	Text       string          `json:"goal"`
	Source     Source          `json:"source"`
	Priority   Priority        `json:"priority,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	InjectedAt time.Time       `json:"injected_at"`
	Processed  bool            `json:"processed"`
}

// Queue reads pending goals from an append-only JSONL file and marks
// consumed entries processed in place, so a restart never replays a goal
// already handed to the loop.
type Queue struct {
	path string
}

// NewQueue binds a Queue to path, creating its parent directory.
func NewQueue(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Queue{path: path}, nil
}

// Inject appends a new, unprocessed goal to the queue file.
func (q *Queue) Inject(g Goal) error {
	if g.InjectedAt.IsZero() {
		g.InjectedAt = time.Now()
	}
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Poll returns every unprocessed goal in file order, without mutating the
// file. Callers must follow a successful Poll with MarkProcessed once each
// returned goal has actually been handled, or the goal will be re-polled.
func (q *Queue) Poll() ([]Goal, error) {
	all, err := q.readAll()
	if err != nil {
		return nil, err
	}
	var pending []Goal
	for _, g := range all {
		if !g.Processed {
			pending = append(pending, g)
		}
	}
	metrics.GoalQueueDepth.Set(float64(len(pending)))
	return pending, nil
}

// MarkProcessed rewrites the queue file, flipping Processed on every goal
// whose ID appears in ids. Rewriting (rather than truncating consumed
// lines) keeps the file a complete, idempotent record: re-running
// MarkProcessed on the same IDs is a no-op.
func (q *Queue) MarkProcessed(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	all, err := q.readAll()
	if err != nil {
		return err
	}
	for i := range all {
		if want[all[i].ID] {
			all[i].Processed = true
		}
	}
	return q.rewrite(all)
}

func (q *Queue) readAll() ([]Goal, error) {
	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var goals []Goal
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var g Goal
		if err := json.Unmarshal(line, &g); err != nil {
			log.Warn().Err(err).Msg("skipping corrupted goal queue entry")
			continue
		}
		goals = append(goals, g)
	}
	return goals, scanner.Err()
}

func (q *Queue) rewrite(goals []Goal) error {
	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".goals-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, g := range goals {
		line, err := json.Marshal(g)
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, q.path)
}
