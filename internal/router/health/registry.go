package health

import (
	"sync"
	"time"
)

// Snapshot is the per-model health view the router's candidate selection reads
// before each dispatch: candidates are filtered to those available with
// error count below a threshold, sorted by declared priority.
type Snapshot struct {
	ModelID       string
	Available     bool
	RecentErrors  int
	LastLatency   time.Duration
	LastSeenError string
}

// trackedModel pairs a breaker with the latency/error bookkeeping the breaker
// itself doesn't keep (it only tracks consecutive/total counts, not recency
// windows or call duration).
type trackedModel struct {
	breaker      *Breaker
	mu           sync.Mutex
	recentErrors []time.Time
	lastLatency  time.Duration
}

// Registry is the router's model health map, guarded by a reader-writer
// lock with short critical sections only. One Breaker per candidate model id, plus a
// sliding window of recent failures used to compute RecentErrors.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*trackedModel
	window time.Duration
	cfg    Config
}

// NewRegistry builds a health registry. window bounds how far back a failure
// still counts toward RecentErrors; cfg is the breaker configuration for
// every tracked model.
func NewRegistry(window time.Duration, cfg Config) *Registry {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Registry{
		models: make(map[string]*trackedModel),
		window: window,
		cfg:    cfg,
	}
}

func (r *Registry) track(modelID string) *trackedModel {
	r.mu.RLock()
	tm, ok := r.models[modelID]
	r.mu.RUnlock()
	if ok {
		return tm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tm, ok = r.models[modelID]; ok {
		return tm
	}
	tm = &trackedModel{breaker: NewBreaker(modelID, r.cfg)}
	r.models[modelID] = tm
	return tm
}

// Allow reports whether modelID's circuit currently accepts dispatch.
func (r *Registry) Allow(modelID string) bool {
	return r.track(modelID).breaker.Allow()
}

// RecordResult updates a model's breaker, latency, and recent-error window
// after a dispatch attempt completes.
func (r *Registry) RecordResult(modelID string, latency time.Duration, err error) {
	tm := r.track(modelID)

	tm.mu.Lock()
	tm.lastLatency = latency
	if err != nil {
		tm.recentErrors = append(tm.recentErrors, time.Now())
		tm.recentErrors = pruneBefore(tm.recentErrors, time.Now().Add(-r.window))
	} else {
		tm.recentErrors = pruneBefore(tm.recentErrors, time.Now().Add(-r.window))
	}
	tm.mu.Unlock()

	if err != nil {
		tm.breaker.RecordFailureWithCategory(err, CategorizeError(err))
	} else {
		tm.breaker.RecordSuccess()
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Snapshot returns the current health view for modelID, registering it with
// default state if it has never been seen before.
func (r *Registry) Snapshot(modelID string) Snapshot {
	tm := r.track(modelID)

	tm.mu.Lock()
	tm.recentErrors = pruneBefore(tm.recentErrors, time.Now().Add(-r.window))
	recent := len(tm.recentErrors)
	latency := tm.lastLatency
	tm.mu.Unlock()

	status := tm.breaker.GetStatus()
	return Snapshot{
		ModelID:       modelID,
		Available:     tm.breaker.CanAllow(),
		RecentErrors:  recent,
		LastLatency:   latency,
		LastSeenError: status.LastError,
	}
}

// Filter narrows candidateIDs to those available with RecentErrors below
// maxRecentErrors, preserving input order (the router sorts candidates by
// declared priority before calling Filter, so order is significant).
func (r *Registry) Filter(candidateIDs []string, maxRecentErrors int) []string {
	out := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		snap := r.Snapshot(id)
		if snap.Available && snap.RecentErrors < maxRecentErrors {
			out = append(out, id)
		}
	}
	return out
}
