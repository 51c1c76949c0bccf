package activity

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mscrnt/sentientos/internal/metrics"
)

// defaultCommandTimeout bounds a single goal's command execution, matching
// the reference loop's wall-clock cap on shell commands it runs
// unattended.
const defaultCommandTimeout = 10 * time.Second

// GoalProducer contributes goals outside the queue file, e.g. the LLM
// observer. It returns nil when it has nothing to add this tick.
type GoalProducer interface {
	Produce(ctx context.Context) (*Goal, error)
}

// Loop is the cooperative goal loop: on each GoalInterval tick it drains
// the queue, and on each HeartbeatInterval tick it injects a synthetic
// health-check goal, processing both through the same command pipeline.
type Loop struct {
	Queue          *Queue
	Log            *DayLog
	GoalInterval   time.Duration
	HeartbeatInterval time.Duration
	CommandTimeout time.Duration
	Producers      []GoalProducer

	processedCount atomic.Int64
}

// NewLoop builds a Loop with the given tick intervals; a zero or negative
// interval falls back to the reference loop's default (5s goal tick, 60s
// heartbeat).
func NewLoop(queue *Queue, dayLog *DayLog, goalInterval, heartbeatInterval time.Duration) *Loop {
	if goalInterval <= 0 {
		goalInterval = 5 * time.Second
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 60 * time.Second
	}
	return &Loop{
		Queue:             queue,
		Log:               dayLog,
		GoalInterval:      goalInterval,
		HeartbeatInterval: heartbeatInterval,
		CommandTimeout:    defaultCommandTimeout,
	}
}

// Run blocks, ticking the goal and heartbeat timers until ctx is
// cancelled. It is safe to run exactly one Loop per process: the loop is
// single-threaded by design, matching the reference implementation's
// cooperative scheduling model.
func (l *Loop) Run(ctx context.Context) error {
	goalTicker := time.NewTicker(l.GoalInterval)
	defer goalTicker.Stop()
	heartbeatTicker := time.NewTicker(l.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-goalTicker.C:
			l.drainQueue(ctx)
			l.pollProducers(ctx)

		case <-heartbeatTicker.C:
			l.injectHeartbeat(ctx)
		}
	}
}

func (l *Loop) drainQueue(ctx context.Context) {
	goals, err := l.Queue.Poll()
	if err != nil {
		log.Error().Err(err).Msg("failed to poll goal queue")
		return
	}
	var handled []string
	for _, g := range goals {
		l.execute(ctx, g)
		handled = append(handled, g.ID)
	}
	if len(handled) > 0 {
		if err := l.Queue.MarkProcessed(handled...); err != nil {
			log.Error().Err(err).Msg("failed to mark goals processed")
		}
	}
}

func (l *Loop) pollProducers(ctx context.Context) {
	for _, p := range l.Producers {
		g, err := p.Produce(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("goal producer failed")
			continue
		}
		if g == nil {
			continue
		}
		l.execute(ctx, *g)
	}
}

func (l *Loop) injectHeartbeat(ctx context.Context) {
	g := Goal{
		ID:         nextID(),
		Text:       "Check system health and resource usage",
		Source:     SourceHeartbeat,
		Priority:   PriorityLow,
		InjectedAt: time.Now(),
	}
	l.execute(ctx, g)
}

// execute runs one goal's mapped command under CommandTimeout, shapes its
// reward, and appends an entry to today's activity log.
func (l *Loop) execute(ctx context.Context, g Goal) {
	command := GoalToCommand(g.Text)

	cctx, cancel := context.WithTimeout(ctx, l.CommandTimeout)
	defer cancel()

	start := time.Now()
	output, success := runCommand(cctx, command)
	elapsed := time.Since(start)

	reward := ShapeReward(success, output)
	l.processedCount.Add(1)

	entry := LogEntry{
		Timestamp:     start,
		Goal:          g.Text,
		Source:        g.Source,
		Command:       command,
		Output:        output,
		Success:       success,
		Reward:        reward,
		ExecutionTime: elapsed.Seconds(),
	}
	if err := l.Log.Append(entry); err != nil {
		log.Error().Err(err).Msg("failed to append activity log entry")
	}

	metrics.ActivityGoalsTotal.WithLabelValues(string(g.Source), strconv.FormatBool(success)).Inc()
	log.Debug().
		Str("goal", g.Text).
		Str("command", command).
		Bool("success", success).
		Float64("reward", reward).
		Dur("elapsed", elapsed).
		Msg("activity goal executed")
}

func runCommand(ctx context.Context, command string) (string, bool) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Sprintf("command timed out after %s", ctx.Err()), false
	}
	return out.String(), err == nil
}

func nextID() string {
	return uuid.NewString()
}
