package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mscrnt/sentientos/internal/errs"
	"github.com/mscrnt/sentientos/internal/safety"
)

// Registry is the in-memory tool catalogue: a map keyed by tool id, plus a
// category index for listing.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	byCategory map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		byCategory: make(map[string][]string),
	}
}

// Register validates and adds t to the catalogue. Registration fails if
// id or command template is empty, if the schema is malformed, or if the
// command template contains a dangerous token without requires_privilege
// set.
func (r *Registry) Register(t Tool) error {
	if t.ID == "" || t.CommandTemplate == "" {
		return errs.Wrap(errs.ManifestInvalid, fmt.Errorf("tool: id and command template are required"))
	}
	if err := validateSchema(t.ArgSchema); err != nil {
		return errs.Wrap(errs.ManifestInvalid, err)
	}
	if safety.IsBlockedCommand(t.CommandTemplate) && !t.RequiresPrivilege {
		return errs.Wrap(errs.ManifestInvalid, fmt.Errorf("tool %q: command template contains a dangerous token but requires_privilege is false", t.ID))
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = 30
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID] = t
	if t.Category != "" {
		r.byCategory[t.Category] = append(r.byCategory[t.Category], t.ID)
	}
	return nil
}

func validateSchema(s *Schema) error {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field has empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("schema field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldString, FieldNumber, FieldBool, FieldObject:
		default:
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Get looks up a tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns every registered tool id in a category, or all ids if
// category is empty.
func (r *Registry) List(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if category != "" {
		ids := append([]string(nil), r.byCategory[category]...)
		sort.Strings(ids)
		return ids
	}
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateArgs checks a raw argument object against a tool's schema,
// confirming every required field is present and type-compatible, and
// rejecting unknown fields when the schema is strict.
func ValidateArgs(schema *Schema, raw json.RawMessage) (Args, error) {
	if schema == nil {
		if len(raw) == 0 {
			return Args{}, nil
		}
		var m Args
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		return m, nil
	}

	var m Args
	if len(raw) == 0 {
		m = Args{}
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("args: invalid JSON: %w", err)
	}

	declared := make(map[string]Field, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = f
		val, present := m[f.Name]
		if !present {
			if f.Required {
				return nil, fmt.Errorf("args: missing required field %q", f.Name)
			}
			continue
		}
		if err := checkType(f.Type, val); err != nil {
			return nil, fmt.Errorf("args: field %q: %w", f.Name, err)
		}
	}

	if schema.Strict {
		for name := range m {
			if _, ok := declared[name]; !ok {
				return nil, fmt.Errorf("args: unexpected field %q", name)
			}
		}
	}

	return m, nil
}

func checkType(t FieldType, raw json.RawMessage) error {
	switch t {
	case FieldString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("expected string")
		}
	case FieldNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("expected number")
		}
	case FieldBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("expected bool")
		}
	case FieldObject:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("expected object")
		}
	}
	return nil
}

// DefaultTools returns the fixed built-in tool set auto-registered at
// startup: a small, host-inspection-focused catalogue covering the
// activity loop's keyword-mapped commands.
func DefaultTools() []Tool {
	return []Tool{
		{
			ID:             "disk_usage",
			DisplayName:    "Disk usage",
			Description:    "Report filesystem disk usage in human-readable form.",
			CommandTemplate: "df -h",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"disk"},
		},
		{
			ID:             "memory_usage",
			DisplayName:    "Memory usage",
			Description:    "Report memory usage in human-readable form.",
			CommandTemplate: "free -h",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"memory"},
		},
		{
			ID:             "cpu_load",
			DisplayName:    "CPU load",
			Description:    "Report load averages and uptime.",
			CommandTemplate: "uptime",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"cpu"},
		},
		{
			ID:             "process_list",
			DisplayName:    "Process list",
			Description:    "List running processes sorted by CPU usage.",
			CommandTemplate: "ps aux --sort=-%cpu",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"process"},
		},
		{
			ID:             "network_connections",
			DisplayName:    "Network connections",
			Description:    "List active network sockets.",
			CommandTemplate: "ss -tunap",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"network"},
		},
		{
			ID:                 "kill_process",
			DisplayName:        "Kill process",
			Description:        "Forcibly terminate a process by pid.",
			CommandTemplate:     "kill -9 {pid}",
			RequiresPrivilege:   true,
			RequiresConfirmation: true,
			TimeoutSeconds:      5,
			Category:            "control",
			Tags:                []string{"process"},
			ArgSchema: &Schema{
				Fields: []Field{
					{Name: "pid", Type: FieldNumber, Required: true},
				},
			},
		},
		{
			ID:                 "restart_service",
			DisplayName:        "Restart service",
			Description:        "Restart a systemd-managed service.",
			CommandTemplate:     "systemctl restart {name}",
			RequiresPrivilege:   true,
			RequiresConfirmation: true,
			TimeoutSeconds:      30,
			Category:            "control",
			Tags:                []string{"service"},
			ArgSchema: &Schema{
				Fields: []Field{
					{Name: "name", Type: FieldString, Required: true},
				},
			},
		},
		{
			ID:             "service_logs",
			DisplayName:    "Service logs",
			Description:    "Tail the most recent journal entries for a service.",
			CommandTemplate: "journalctl -u {name} -n 100 --no-pager",
			TimeoutSeconds: 10,
			Category:       "inspection",
			Tags:           []string{"service", "log"},
			ArgSchema: &Schema{
				Fields: []Field{
					{Name: "name", Type: FieldString, Required: true},
				},
			},
		},
	}
}
