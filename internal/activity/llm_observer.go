package activity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mscrnt/sentientos/internal/router"
)

// minObserverReplyLen is the shortest model reply the observer accepts as
// a real goal suggestion; anything shorter is treated the same as a
// failed query and falls back to a canned goal.
const minObserverReplyLen = 8

// fallbackGoals mirrors the reference observer's canned monitoring
// suggestions, used whenever the model is unavailable or too terse to
// trust.
var fallbackGoals = []string{
	"Check disk usage across all mounted filesystems",
	"Review memory consumption and identify top consumers",
	"Inspect CPU load distribution across cores",
	"Scan recent system logs for error patterns",
	"List running processes sorted by resource usage",
	"Verify network connectivity and open connections",
	"Check the status of supervised services",
	"Review system uptime and load averages",
	"Look for processes consuming excessive file descriptors",
	"Audit recent activity log entries for repeated failures",
}

// LLMObserver is a goal producer that periodically asks the router's
// model chain what should be checked next, sampling a short system
// summary as context. It implements Loop's GoalProducer interface.
type LLMObserver struct {
	Dispatcher *router.Dispatcher
	Interval   time.Duration

	mu         sync.Mutex
	lastRun    time.Time
	fallbackAt int
}

// NewLLMObserver builds an observer gated by interval; a zero or negative
// interval falls back to 5 minutes, matching config.LLMInterval's default.
func NewLLMObserver(dispatcher *router.Dispatcher, interval time.Duration) *LLMObserver {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LLMObserver{Dispatcher: dispatcher, Interval: interval}
}

// Produce returns a new goal at most once per Interval. Outside that
// window it returns (nil, nil), the same as "nothing to contribute".
func (o *LLMObserver) Produce(ctx context.Context) (*Goal, error) {
	o.mu.Lock()
	due := time.Since(o.lastRun) >= o.Interval
	if due {
		o.lastRun = time.Now()
	}
	o.mu.Unlock()
	if !due {
		return nil, nil
	}

	summary := sampleSystemSummary()
	prompt := fmt.Sprintf(
		"Given the current system state below, suggest exactly one short, "+
			"concrete monitoring or maintenance goal to check next. Reply with "+
			"just the goal, no preamble.\n\n%s", summary)

	text, confidence := o.query(ctx, prompt)

	return &Goal{
		ID:         nextID(),
		Text:       text,
		Source:     SourceLLM,
		Priority:   PriorityNormal,
		Confidence: confidence,
		InjectedAt: time.Now(),
	}, nil
}

func (o *LLMObserver) query(ctx context.Context, prompt string) (string, float64) {
	if o.Dispatcher == nil {
		return o.nextFallback(), 0
	}

	result, err := o.Dispatcher.Dispatch(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("llm observer query failed, using fallback goal")
		return o.nextFallback(), 0
	}

	reply := strings.TrimSpace(result.Answer)
	if len(reply) < minObserverReplyLen {
		return o.nextFallback(), 0
	}
	return reply, 0.6
}

func (o *LLMObserver) nextFallback() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	g := fallbackGoals[o.fallbackAt%len(fallbackGoals)]
	o.fallbackAt++
	return g
}

// sampleSystemSummary renders a short, human-readable snapshot of CPU,
// memory, and disk state for the observer's prompt. A metric that fails to
// sample is simply omitted rather than aborting the whole summary.
func sampleSystemSummary() string {
	var lines []string

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		lines = append(lines, fmt.Sprintf("CPU usage: %.1f%%", percents[0]))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		lines = append(lines, fmt.Sprintf("Memory usage: %.1f%% (%d MB used of %d MB)",
			vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024))
	}
	if du, err := disk.Usage("/"); err == nil {
		lines = append(lines, fmt.Sprintf("Disk usage on /: %.1f%%", du.UsedPercent))
	}

	if len(lines) == 0 {
		return "System metrics unavailable."
	}
	return strings.Join(lines, "\n")
}
