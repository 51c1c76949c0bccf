package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// outputTruncateBytes caps the stored command output, keeping the daily
// log readable and bounded regardless of how chatty a goal's command is.
const outputTruncateBytes = 500

// LogEntry is one executed goal's record in the day's activity log.
type LogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Goal          string    `json:"goal"`
	Source        Source    `json:"source"`
	Command       string    `json:"command"`
	Output        string    `json:"output"`
	Success       bool      `json:"success"`
	Reward        float64   `json:"reward"`
	ExecutionTime float64   `json:"execution_time"`
}

// DayLog appends entries to a rolling set of daily JSONL files, one file
// per UTC calendar day, named activity_loop_log_YYYYMMDD.jsonl.
type DayLog struct {
	mu  sync.Mutex
	dir string
}

// NewDayLog binds a DayLog to dir, creating it if necessary.
func NewDayLog(dir string) (*DayLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DayLog{dir: dir}, nil
}

// Append writes one entry to today's file, truncating its output field to
// outputTruncateBytes first.
func (d *DayLog) Append(entry LogEntry) error {
	if len(entry.Output) > outputTruncateBytes {
		entry.Output = entry.Output[:outputTruncateBytes]
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.pathFor(entry.Timestamp)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
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

func (d *DayLog) pathFor(t time.Time) string {
	name := fmt.Sprintf("activity_loop_log_%s.jsonl", t.UTC().Format("20060102"))
	return filepath.Join(d.dir, name)
}
