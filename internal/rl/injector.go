package rl

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// injectorGoalTemplates pairs each of the injector's ten action slots
// with a goal and the reasoning attached when that slot fires.
var injectorGoalTemplates = []struct {
	goal      string
	reasoning string
}{
	{"Monitor disk I/O activity", "High disk usage detected"},
	{"Check memory usage patterns", "Memory optimization needed"},
	{"Analyze CPU load distribution", "CPU usage requires attention"},
	{"Review network connections", "Network monitoring suggested"},
	{"Scan system logs for errors", "Error detection required"},
	{"Verify service health status", "Service health check needed"},
	{"Check disk space usage", "Disk space monitoring needed"},
	{"Monitor process count", "Process management suggested"},
	{"Analyze system performance", "Performance analysis needed"},
	{"Review security events", "Security monitoring suggested"},
}

// PolicyInjectorConfig configures an Injector.
type PolicyInjectorConfig struct {
	InjectionInterval  time.Duration
	AutoInject         bool
	MaxGoalsPerInterval int
	ConfidenceThreshold float32
	GoalPriority        string
	// Sandbox, when true, runs policy inference under a bounded
	// context derived from Timeout rather than the caller's ambient
	// context, matching config.PythonSandbox's intent: an inference
	// step that hangs or runs away must not stall the injector loop.
	Sandbox bool
	Timeout time.Duration
}

// DefaultPolicyInjectorConfig matches the reference injector's tuned
// defaults.
func DefaultPolicyInjectorConfig() PolicyInjectorConfig {
	return PolicyInjectorConfig{
		InjectionInterval:   30 * time.Second,
		AutoInject:          false,
		MaxGoalsPerInterval: 1,
		ConfidenceThreshold: 0.7,
		GoalPriority:        "medium",
		Sandbox:             false,
		Timeout:             5 * time.Second,
	}
}

// SystemObservation is the ten-feature snapshot the injector scores
// against a policy's action output.
type SystemObservation struct {
	CPUUsage          float32
	MemoryUsage       float32
	DiskUsage         float32
	ProcessCount      int
	GoalSuccessRate   float32
	AvgExecutionTime  float32
	ErrorCount        int
	TimeSinceLastGoal float32
	TimeOfDay         float32
	DayOfWeek         float32
}

// GoalSuggestion is one policy-proposed goal, carrying enough context
// for a human or downstream log to judge why it was suggested.
type GoalSuggestion struct {
	ID             string
	Goal           string
	Confidence     float32
	Reasoning      string
	ExpectedReward float32
	ActionIndex    int
}

// GoalFeedback reports an injected goal's actual execution outcome,
// closing the loop for future training.
type GoalFeedback struct {
	GoalID          string
	Goal            string
	Success         bool
	ExecutionTimeMS int64
	Reward          float32
	Timestamp       time.Time
}

type injectionRecord struct {
	id         string
	timestamp  time.Time
	goal       string
	confidence float32
	feedback   *GoalFeedback
}

// scorer is the minimal interface Injector needs from a policy: a
// forward pass that turns an observation vector into per-slot scores.
// PolicyNetwork satisfies it directly.
type scorer interface {
	Forward(observation []float32) (PolicyOutput, error)
}

// Injector periodically scores the live system state against a loaded
// policy and turns its highest-confidence action slot into a goal
// suggestion, gating injection on a confidence threshold and a
// per-interval cap, the way the reference policy injector does.
type Injector struct {
	cfg    PolicyInjectorConfig
	policy scorer

	mu              sync.Mutex
	history         []injectionRecord
	injectionHandle func(GoalSuggestion) error
}

// NewInjector builds an Injector around policy. inject is called for
// every suggestion that clears the confidence threshold; it is the
// caller's hook into whatever goal queue or pipeline should receive it.
func NewInjector(cfg PolicyInjectorConfig, policy scorer, inject func(GoalSuggestion) error) *Injector {
	return &Injector{cfg: cfg, policy: policy, injectionHandle: inject}
}

// Tick runs one injection cycle: sample the system, score it, and
// inject up to MaxGoalsPerInterval suggestions that clear
// ConfidenceThreshold. It is meant to be called on InjectionInterval by
// a caller-owned ticker, mirroring the way internal/activity's Loop
// drives its own producers rather than each producer running its own
// goroutine.
func (in *Injector) Tick(ctx context.Context) error {
	if !in.cfg.AutoInject {
		return nil
	}

	obs, err := in.sampleSystemObservation()
	if err != nil {
		return fmt.Errorf("rl: sample system observation: %w", err)
	}

	suggestions, err := in.scoreObservation(ctx, obs)
	if err != nil {
		return fmt.Errorf("rl: score observation: %w", err)
	}

	injected := 0
	for _, s := range suggestions {
		if injected >= in.cfg.MaxGoalsPerInterval {
			break
		}
		if s.Confidence < in.cfg.ConfidenceThreshold {
			continue
		}
		if in.injectionHandle != nil {
			if err := in.injectionHandle(s); err != nil {
				log.Warn().Err(err).Str("goal", s.Goal).Msg("failed to inject rl-suggested goal")
				continue
			}
		}
		in.recordInjection(s)
		injected++
	}
	return nil
}

func (in *Injector) recordInjection(s GoalSuggestion) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.history = append(in.history, injectionRecord{
		id:         s.ID,
		timestamp:  time.Now(),
		goal:       s.Goal,
		confidence: s.Confidence,
	})
}

// AddFeedback attaches an executed goal's outcome to its injection
// record, matching by GoalID when set and falling back to the most
// recent unfed-back record for that goal text otherwise.
func (in *Injector) AddFeedback(fb GoalFeedback) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := len(in.history) - 1; i >= 0; i-- {
		if in.history[i].feedback != nil {
			continue
		}
		if fb.GoalID != "" && in.history[i].id == fb.GoalID {
			in.history[i].feedback = &fb
			return
		}
		if fb.GoalID == "" && in.history[i].goal == fb.Goal {
			in.history[i].feedback = &fb
			return
		}
	}
}

// scoreObservation runs the policy's forward pass (optionally under a
// bounded sandbox timeout) and converts its action output into goal
// suggestions, ordering by confidence.
func (in *Injector) scoreObservation(ctx context.Context, obs SystemObservation) ([]GoalSuggestion, error) {
	if in.cfg.Sandbox {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.Timeout)
		defer cancel()
	}

	tensor := observationToTensor(obs)

	resultCh := make(chan []float32, 1)
	errCh := make(chan error, 1)
	go func() {
		action, err := in.predict(tensor)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- action
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case action := <-resultCh:
		return actionToGoals(action, obs), nil
	}
}

// predict runs the policy when one is loaded, falling back to the
// reference implementation's deterministic heuristic otherwise: favor
// the resource that is closest to saturation (the highest of CPU,
// memory and disk usage above 80%), defaulting to a general
// performance-analysis suggestion.
func (in *Injector) predict(tensor []float32) ([]float32, error) {
	if in.policy != nil {
		out, err := in.policy.Forward(tensor)
		if err != nil {
			return nil, err
		}
		return out.ActionOutput, nil
	}
	return heuristicPredict(tensor), nil
}

func heuristicPredict(obs []float32) []float32 {
	action := make([]float32, len(injectorGoalTemplates))
	for i := range action {
		action[i] = 0.1
	}
	// CPU, memory and disk features (tensor order) favor these slots.
	slots := []int{2, 1, 0}
	best := -1
	for f := 0; f < len(slots) && f < len(obs); f++ {
		if obs[f] > 0.8 && (best < 0 || obs[f] > obs[best]) {
			best = f
		}
	}
	if best >= 0 {
		action[slots[best]] = 0.9
	} else {
		action[8] = 0.7
	}
	return action
}

// observationToTensor normalizes SystemObservation into the ten-feature
// vector the policy was trained against: percentages to [0,1], counts
// and durations through a tanh squash, and time-of-day/day-of-week
// already normalized at the source.
func observationToTensor(obs SystemObservation) []float32 {
	return []float32{
		obs.CPUUsage / 100,
		obs.MemoryUsage / 100,
		obs.DiskUsage / 100,
		tanhNorm(float32(obs.ProcessCount) / 1000),
		obs.GoalSuccessRate,
		tanhNorm(obs.AvgExecutionTime / 1000),
		tanhNorm(float32(obs.ErrorCount) / 10),
		tanhNorm(obs.TimeSinceLastGoal / 300),
		obs.TimeOfDay,
		obs.DayOfWeek,
	}
}

func tanhNorm(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// actionToGoals picks the single highest-scoring action slot and turns
// it into one goal suggestion, annotated with the live metrics that
// justified it — the reference injector only ever proposes its top
// pick per tick, never the whole ranked list.
func actionToGoals(action []float32, obs SystemObservation) []GoalSuggestion {
	if len(action) == 0 {
		return nil
	}
	bestIdx := 0
	for i, v := range action {
		if v > action[bestIdx] {
			bestIdx = i
		}
	}
	if bestIdx >= len(injectorGoalTemplates) {
		return nil
	}

	tmpl := injectorGoalTemplates[bestIdx]
	reasoning := fmt.Sprintf("%s (CPU: %.1f%%, Mem: %.1f%%, Disk: %.1f%%)",
		tmpl.reasoning, obs.CPUUsage, obs.MemoryUsage, obs.DiskUsage)

	return []GoalSuggestion{{
		ID:             newGoalID(),
		Goal:           tmpl.goal,
		Confidence:     action[bestIdx],
		Reasoning:      reasoning,
		ExpectedReward: action[bestIdx] * obs.GoalSuccessRate,
		ActionIndex:    bestIdx,
	}}
}

// sampleSystemObservation gathers live CPU/memory/disk/process metrics
// plus recent-goal-history statistics derived from the injector's own
// injection records, defaulting success-rate/avg-time/time-since-last
// the way the reference injector does when no history exists yet.
func (in *Injector) sampleSystemObservation() (SystemObservation, error) {
	obs := SystemObservation{GoalSuccessRate: 0.5, AvgExecutionTime: 100, TimeSinceLastGoal: 300}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		obs.CPUUsage = float32(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		obs.MemoryUsage = float32(vm.UsedPercent)
	}
	if du, err := disk.Usage("/"); err == nil {
		obs.DiskUsage = float32(du.UsedPercent)
	}
	if procs, err := process.Processes(); err == nil {
		obs.ProcessCount = len(procs)
	}

	now := time.Now().UTC()
	obs.TimeOfDay = (float32(now.Hour()) + float32(now.Minute())/60) / 24
	obs.DayOfWeek = float32(int(now.Weekday())) / 7

	in.mu.Lock()
	defer in.mu.Unlock()

	recent := recentFeedback(in.history, 10)
	if len(recent) > 0 {
		var successes int
		var totalTime float32
		for _, fb := range recent {
			if fb.Success {
				successes++
			}
			totalTime += float32(fb.ExecutionTimeMS)
		}
		obs.GoalSuccessRate = float32(successes) / float32(len(recent))
		obs.AvgExecutionTime = totalTime / float32(len(recent))
		obs.ErrorCount = len(recent) - successes
	}
	if len(in.history) > 0 {
		obs.TimeSinceLastGoal = float32(time.Since(in.history[len(in.history)-1].timestamp).Seconds())
	}

	return obs, nil
}

func recentFeedback(history []injectionRecord, limit int) []GoalFeedback {
	var out []GoalFeedback
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if history[i].feedback != nil {
			out = append(out, *history[i].feedback)
		}
	}
	return out
}

// newGoalID mints an injection-scoped identifier, the same scheme the
// activity queue uses for goal IDs.
func newGoalID() string { return uuid.NewString() }
