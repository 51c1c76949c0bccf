package supervisor

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadManifests_ValidSet(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.toml", `
name = "a"
command = "/bin/true"
`)
	writeManifest(t, dir, "b.toml", `
name = "b"
command = "/bin/true"
dependencies = ["a"]
`)

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}
	for _, m := range manifests {
		if m.RestartPolicy != RestartOnFailure {
			t.Errorf("expected default restart policy on_failure, got %q", m.RestartPolicy)
		}
	}
}

func TestLoadManifests_MissingDirReturnsEmpty(t *testing.T) {
	manifests, err := LoadManifests(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 0 {
		t.Errorf("expected no manifests, got %d", len(manifests))
	}
}

func TestLoadManifests_RejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.toml", `command = "/bin/true"`)
	if _, err := LoadManifests(dir); err == nil {
		t.Fatal("expected an error for missing name")
	}
}

func TestLoadManifests_RejectsMissingCommand(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.toml", `name = "x"`)
	if _, err := LoadManifests(dir); err == nil {
		t.Fatal("expected an error for missing command")
	}
}

func TestLoadManifests_RejectsSelfDependency(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.toml", `
name = "x"
command = "/bin/true"
dependencies = ["x"]
`)
	if _, err := LoadManifests(dir); err == nil {
		t.Fatal("expected an error for self-dependency")
	}
}

func TestLoadManifests_RejectsUnknownRestartPolicy(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.toml", `
name = "x"
command = "/bin/true"
restart_policy = "sometimes"
`)
	if _, err := LoadManifests(dir); err == nil {
		t.Fatal("expected an error for unrecognised restart policy")
	}
}
