package metrics

import "testing"

func TestNewRegistryGathersMetrics(t *testing.T) {
	r := NewRegistry()
	r.SubmittedTotal.WithLabelValues("finality", "a-to-b").Inc()
	r.StalledLoops.WithLabelValues("finality", "a-to-b").Set(1)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family after recording")
	}
}
