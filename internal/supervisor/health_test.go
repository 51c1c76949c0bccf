package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestHealthMonitor_MarksUnhealthyAfterThreshold(t *testing.T) {
	hm := NewHealthMonitor()
	m := Manifest{
		Name: "svc",
		HealthCheck: &HealthCheck{
			Command:          "/bin/false",
			IntervalSeconds:  0, // falls back to a default well above the test timeout below
			TimeoutSeconds:   1,
			FailureThreshold: 2,
		},
	}
	// Probe directly rather than through Watch's ticker, so the test is
	// not timing-dependent.
	hm.probe(context.Background(), m, time.Second, 2)
	if hm.Status("svc") != HealthUnknown && hm.Status("svc") != HealthUnhealthy {
		t.Fatalf("unexpected intermediate status: %v", hm.Status("svc"))
	}
	hm.probe(context.Background(), m, time.Second, 2)
	if hm.Status("svc") != HealthUnhealthy {
		t.Errorf("expected unhealthy after 2 consecutive failures, got %v", hm.Status("svc"))
	}
}

func TestHealthMonitor_RecoversOnSuccess(t *testing.T) {
	hm := NewHealthMonitor()
	m := Manifest{Name: "svc", HealthCheck: &HealthCheck{Command: "/bin/false", FailureThreshold: 1}}
	hm.probe(context.Background(), m, time.Second, 1)
	if hm.Status("svc") != HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %v", hm.Status("svc"))
	}

	m.HealthCheck.Command = "/bin/true"
	hm.probe(context.Background(), m, time.Second, 1)
	if hm.Status("svc") != HealthHealthy {
		t.Errorf("expected recovered to healthy, got %v", hm.Status("svc"))
	}
}

func TestHealthMonitor_WatchSkipsManifestsWithoutHealthCheck(t *testing.T) {
	hm := NewHealthMonitor()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := hm.Watch(ctx, Manifest{Name: "no-check"}); err != nil {
		t.Errorf("expected nil for a manifest without a health check, got %v", err)
	}
}
