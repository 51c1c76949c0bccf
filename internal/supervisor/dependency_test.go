package supervisor

import "testing"

func mustIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestBuildStartupOrder_DependenciesComeFirst(t *testing.T) {
	manifests := []Manifest{
		{Name: "web", Command: "/bin/true", Dependencies: []string{"db", "cache"}},
		{Name: "db", Command: "/bin/true"},
		{Name: "cache", Command: "/bin/true", Dependencies: []string{"db"}},
	}

	order, err := BuildStartupOrder(manifests)
	if err != nil {
		t.Fatalf("BuildStartupOrder: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(order))
	}

	dbIdx, cacheIdx, webIdx := mustIndex(order, "db"), mustIndex(order, "cache"), mustIndex(order, "web")
	if dbIdx > cacheIdx || dbIdx > webIdx {
		t.Errorf("db must start before its dependents, got order %v", order)
	}
	if cacheIdx > webIdx {
		t.Errorf("cache must start before web, got order %v", order)
	}
}

func TestDetectCycle_FindsDirectCycle(t *testing.T) {
	manifests := []Manifest{
		{Name: "a", Command: "/bin/true", Dependencies: []string{"b"}},
		{Name: "b", Command: "/bin/true", Dependencies: []string{"a"}},
	}
	if err := DetectCycle(manifests); err == nil {
		t.Fatal("expected a cycle to be detected")
	}
}

func TestDetectCycle_FindsIndirectCycle(t *testing.T) {
	manifests := []Manifest{
		{Name: "a", Command: "/bin/true", Dependencies: []string{"b"}},
		{Name: "b", Command: "/bin/true", Dependencies: []string{"c"}},
		{Name: "c", Command: "/bin/true", Dependencies: []string{"a"}},
	}
	if err := DetectCycle(manifests); err == nil {
		t.Fatal("expected an indirect cycle to be detected")
	}
}

func TestBuildStartupOrder_RejectsCycle(t *testing.T) {
	manifests := []Manifest{
		{Name: "a", Command: "/bin/true", Dependencies: []string{"b"}},
		{Name: "b", Command: "/bin/true", Dependencies: []string{"a"}},
	}
	if _, err := BuildStartupOrder(manifests); err == nil {
		t.Fatal("expected BuildStartupOrder to reject a cyclic graph")
	}
}

func TestDetectCycle_AcyclicDiamondPasses(t *testing.T) {
	manifests := []Manifest{
		{Name: "top", Command: "/bin/true", Dependencies: []string{"left", "right"}},
		{Name: "left", Command: "/bin/true", Dependencies: []string{"bottom"}},
		{Name: "right", Command: "/bin/true", Dependencies: []string{"bottom"}},
		{Name: "bottom", Command: "/bin/true"},
	}
	if err := DetectCycle(manifests); err != nil {
		t.Errorf("expected no cycle, got %v", err)
	}
}
