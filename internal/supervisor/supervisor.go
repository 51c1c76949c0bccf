package supervisor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Supervisor ties manifest loading, dependency ordering, process
// management, and health monitoring into one managed lifecycle.
type Supervisor struct {
	ManifestDir string

	manifests    []Manifest
	startupOrder []string
	processes    *ProcessManager
	health       *HealthMonitor
}

// New builds a Supervisor reading manifests from dir.
func New(dir string) *Supervisor {
	return &Supervisor{
		ManifestDir: dir,
		processes:   NewProcessManager(),
		health:      NewHealthMonitor(),
	}
}

// Load reads and validates every manifest in ManifestDir and computes the
// dependency-ordered startup sequence, failing fast on an invalid
// manifest or a dependency cycle.
func (s *Supervisor) Load() error {
	manifests, err := LoadManifests(s.ManifestDir)
	if err != nil {
		return err
	}
	order, err := BuildStartupOrder(manifests)
	if err != nil {
		return err
	}

	for _, m := range manifests {
		s.processes.Register(m)
	}
	s.manifests = manifests
	s.startupOrder = order
	return nil
}

// Processes exposes the underlying process manager, e.g. for a CLI's
// `service status` command.
func (s *Supervisor) Processes() *ProcessManager { return s.processes }

// Health exposes the underlying health monitor.
func (s *Supervisor) Health() *HealthMonitor { return s.health }

// StartupOrder returns the dependency-ordered list of service names
// computed by Load.
func (s *Supervisor) StartupOrder() []string { return s.startupOrder }

// Run starts every service in dependency order, each under its own
// errgroup goroutine alongside its health monitor loop, and blocks until
// ctx is cancelled or any service's monitor loop returns a non-cancellation
// error. On return it gracefully stops whatever is still running.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	byName := indexByName(s.manifests)
	for _, name := range s.startupOrder {
		name := name
		g.Go(func() error {
			return s.processes.Start(gctx, name)
		})
		if m, ok := byName[name]; ok && m.HealthCheck != nil {
			g.Go(func() error {
				return s.health.Watch(gctx, m)
			})
		}
	}

	err := g.Wait()
	s.processes.StopAll(s.startupOrder)
	if err == context.Canceled {
		return nil
	}
	return err
}
