// Package trace implements the append-only JSONL decision log: one
// process-wide mutex serialises appends, and reward updates
// rewrite the file atomically via a temp-file-and-rename, the same pattern
// used elsewhere in this codebase for in-place field updates.
package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mscrnt/sentientos/internal/logging"
)

var log = logging.For("trace")

// Entry is one router-handled request's outcome.
type Entry struct {
	TraceID            string    `json:"trace_id"`
	Timestamp          time.Time `json:"timestamp"`
	Prompt             string    `json:"prompt"`
	Intent             string    `json:"intent"`
	ModelUsed          string    `json:"model_used"`
	ToolExecuted       *string   `json:"tool_executed,omitempty"`
	RAGUsed            bool      `json:"rag_used"`
	ConditionsMatched  []string  `json:"conditions_evaluated"`
	Success            bool      `json:"success"`
	DurationMS         int64     `json:"duration_ms"`
	Reward             *float64  `json:"reward,omitempty"`
}

// NewTraceID mints a lexically sortable, globally unique trace id.
func NewTraceID() string {
	return ulid.Make().String()
}

// Log is the append-only trace file, guarded by a single mutex so appends to
// it are totally ordered.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open prepares a trace log at path, creating its parent directory.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Log{path: path}, nil
}

// Append writes one entry, flushing before returning so every append
// reaches durable storage before the caller proceeds.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// UpdateReward rewrites the file atomically, setting the reward field on the
// first entry matching traceID. Reward is monotonic in existence only:
// none→some is allowed, some→some overwrites.
func (l *Log) UpdateReward(traceID string, reward float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAllLocked()
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].TraceID == traceID {
			r := reward
			entries[i].Reward = &r
			found = true
			break
		}
	}
	if !found {
		return os.ErrNotExist
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".trace-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		line, err := json.Marshal(e)
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
	return os.Rename(tmpName, l.path)
}

// Load returns every parseable entry in the file. Corrupted lines are
// skipped with a warning; a missing file is treated as empty.
func (l *Log) Load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAllLocked()
}

func (l *Log) readAllLocked() ([]Entry, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn().Int("line", lineNo).Err(err).Msg("skipping corrupted trace line")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Summary aggregates counts keyed by model, tool, and intent, plus success
// rate, mean duration, and mean reward over entries where reward is set.
type Summary struct {
	TotalExecutions     int
	SuccessfulExecutions int
	SuccessRate         float64
	RAGUsedCount        int
	ToolUsedCount       int
	ModelUsage          map[string]int
	ToolUsage           map[string]int
	IntentDistribution  map[string]int
	AverageDurationMS   float64
	AverageReward       float64
	RewardedCount       int
}

// Summarize streams the log once, computing the aggregate view.
func (l *Log) Summarize() (Summary, error) {
	entries, err := l.Load()
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		ModelUsage:         make(map[string]int),
		ToolUsage:          make(map[string]int),
		IntentDistribution: make(map[string]int),
	}

	var totalDuration int64
	var totalReward float64

	for _, e := range entries {
		s.TotalExecutions++
		if e.Success {
			s.SuccessfulExecutions++
		}
		if e.RAGUsed {
			s.RAGUsedCount++
		}
		if e.ToolExecuted != nil {
			s.ToolUsedCount++
			s.ToolUsage[*e.ToolExecuted]++
		}
		s.ModelUsage[e.ModelUsed]++
		s.IntentDistribution[e.Intent]++
		totalDuration += e.DurationMS
		if e.Reward != nil {
			s.RewardedCount++
			totalReward += *e.Reward
		}
	}

	if s.TotalExecutions > 0 {
		s.SuccessRate = float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
		s.AverageDurationMS = float64(totalDuration) / float64(s.TotalExecutions)
	}
	if s.RewardedCount > 0 {
		s.AverageReward = totalReward / float64(s.RewardedCount)
	}

	return s, nil
}
