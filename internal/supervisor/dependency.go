package supervisor

import (
	"fmt"

	"github.com/mscrnt/sentientos/internal/errs"
)

// visitState tracks a node's position in the DFS cycle check: unvisited
// (the zero value), in the current recursion stack, or fully resolved.
type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// DetectCycle walks the dependency graph depth-first, reporting the first
// cycle it finds via the in-progress recursion stack (a node reached while
// still grey is a back edge, i.e. a cycle).
func DetectCycle(manifests []Manifest) error {
	byName := indexByName(manifests)
	state := make(map[string]visitState, len(manifests))

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			return errs.Wrap(errs.CycleDetected, fmt.Errorf("dependency cycle: %s -> %s", joinStack(stack), name))
		}
		state[name] = inProgress
		stack = append(stack, name)
		if m, ok := byName[name]; ok {
			for _, dep := range m.Dependencies {
				if err := visit(dep, stack); err != nil {
					return err
				}
			}
		}
		state[name] = done
		return nil
	}

	for _, m := range manifests {
		if state[m.Name] == unvisited {
			if err := visit(m.Name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildStartupOrder returns service names in the order they must be
// started so every dependency starts before its dependents. It runs
// DetectCycle and returns its error for a cyclic graph, then performs a
// Kahn's-algorithm topological sort whose queue starts with the services
// that have no dependencies.
func BuildStartupOrder(manifests []Manifest) ([]string, error) {
	if err := DetectCycle(manifests); err != nil {
		return nil, err
	}

	// Build the dependency -> dependents adjacency and count each node's
	// own dependencies as its in-degree, so nodes with no dependencies are
	// queued first and a dependent is queued only once all of its
	// dependencies have been ordered.
	dependents := make(map[string][]string, len(manifests))
	inDegree := make(map[string]int, len(manifests))
	for _, m := range manifests {
		if _, ok := inDegree[m.Name]; !ok {
			inDegree[m.Name] = 0
		}
		for _, dep := range m.Dependencies {
			dependents[dep] = append(dependents[dep], m.Name)
			inDegree[m.Name]++
		}
	}

	var queue []string
	for _, m := range manifests {
		if inDegree[m.Name] == 0 {
			queue = append(queue, m.Name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(manifests) {
		return nil, errs.Wrap(errs.CycleDetected, fmt.Errorf("dependency graph has an unresolved cycle"))
	}

	return order, nil
}

func indexByName(manifests []Manifest) map[string]Manifest {
	byName := make(map[string]Manifest, len(manifests))
	for _, m := range manifests {
		byName[m.Name] = m
	}
	return byName
}

func joinStack(stack []string) string {
	out := ""
	for i, s := range stack {
		if i > 0 {
			out += " -> "
		}
		out += s
	}
	return out
}
