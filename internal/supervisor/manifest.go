// Package supervisor implements the service supervisor: TOML manifests
// declare a dependency graph of managed processes, which are started in
// dependency order, restarted according to policy, health-checked on a
// timer, and shut down gracefully (SIGTERM, then SIGKILL after a grace
// period) on supervisor exit.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mscrnt/sentientos/internal/errs"
	"github.com/mscrnt/sentientos/internal/logging"
)

var log = logging.For("supervisor")

// RestartPolicy governs whether the process manager restarts a service
// after it exits.
type RestartPolicy string

const (
	RestartNever         RestartPolicy = "never"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on_failure"
	RestartUnlessStopped RestartPolicy = "unless_stopped"
)

// HealthCheck configures a service's periodic liveness probe.
type HealthCheck struct {
	Command            string `toml:"command"`
	IntervalSeconds    int    `toml:"interval_seconds"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	FailureThreshold   int    `toml:"failure_threshold"`
}

// Manifest is one service's declaration, as read from a single TOML file
// in the manifest directory.
type Manifest struct {
	Name             string            `toml:"name"`
	Command          string            `toml:"command"`
	Args             []string          `toml:"args"`
	WorkingDirectory string            `toml:"working_directory"`
	Env              map[string]string `toml:"env"`
	Dependencies     []string          `toml:"dependencies"`
	RestartPolicy    RestartPolicy     `toml:"restart_policy"`
	HealthCheck      *HealthCheck      `toml:"health_check"`
}

// LoadManifests reads every *.toml file in dir and validates it: a
// manifest must name itself and a command, and may not depend on itself.
// Files are read in lexical order for deterministic error reporting, but
// callers must not rely on that order for startup sequencing — use
// BuildStartupOrder for that.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	manifests := make([]Manifest, 0, len(paths))
	for _, path := range paths {
		var m Manifest
		if _, err := toml.DecodeFile(path, &m); err != nil {
			return nil, errs.Wrap(errs.ManifestInvalid, fmt.Errorf("supervisor: decoding %s: %w", path, err))
		}
		if err := validateManifest(m); err != nil {
			return nil, errs.Wrap(errs.ManifestInvalid, fmt.Errorf("supervisor: %s: %w", path, err))
		}
		if m.RestartPolicy == "" {
			m.RestartPolicy = RestartOnFailure
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func validateManifest(m Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(m.Command) == "" {
		return fmt.Errorf("command is required")
	}
	for _, dep := range m.Dependencies {
		if dep == m.Name {
			return fmt.Errorf("service %q cannot depend on itself", m.Name)
		}
	}
	switch m.RestartPolicy {
	case "", RestartNever, RestartAlways, RestartOnFailure, RestartUnlessStopped:
	default:
		return fmt.Errorf("service %q: unrecognised restart_policy %q", m.Name, m.RestartPolicy)
	}
	return nil
}
