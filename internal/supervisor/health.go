package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// HealthStatus is a service's liveness as judged by its health check.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthUnhealthy
)

// HealthMonitor runs each service's configured health-check command on its
// own interval, tracking consecutive failures so a single flaky probe
// doesn't flip a service unhealthy.
type HealthMonitor struct {
	mu     sync.Mutex
	status map[string]HealthStatus
	fails  map[string]int
}

// NewHealthMonitor returns an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		status: make(map[string]HealthStatus),
		fails:  make(map[string]int),
	}
}

// Status returns the last-observed health for name, HealthUnknown if it
// has never been checked.
func (hm *HealthMonitor) Status(name string) HealthStatus {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.status[name]
}

// Watch runs m's health check on its configured interval until ctx is
// cancelled. A manifest with no HealthCheck configured returns
// immediately, contributing nothing to monitor.
func (hm *HealthMonitor) Watch(ctx context.Context, m Manifest) error {
	if m.HealthCheck == nil || m.HealthCheck.Command == "" {
		return nil
	}

	interval := time.Duration(m.HealthCheck.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(m.HealthCheck.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	threshold := m.HealthCheck.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hm.probe(ctx, m, timeout, threshold)
		}
	}
}

func (hm *HealthMonitor) probe(ctx context.Context, m Manifest, timeout time.Duration, threshold int) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := exec.CommandContext(cctx, "/bin/sh", "-c", m.HealthCheck.Command).Run()

	hm.mu.Lock()
	defer hm.mu.Unlock()

	if err == nil {
		if hm.status[m.Name] == HealthUnhealthy {
			log.Info().Str("service", m.Name).Msg("service health recovered")
		}
		hm.fails[m.Name] = 0
		hm.status[m.Name] = HealthHealthy
		return
	}

	hm.fails[m.Name]++
	if hm.fails[m.Name] >= threshold {
		if hm.status[m.Name] != HealthUnhealthy {
			log.Warn().Str("service", m.Name).Int("consecutive_failures", hm.fails[m.Name]).
				Msg("service marked unhealthy")
		}
		hm.status[m.Name] = HealthUnhealthy
	}
}
