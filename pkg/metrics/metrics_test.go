package metrics

import "testing"

func TestNewRegistersWithoutPanicking(t *testing.T) {
	r := New()
	if r.Handler() == nil {
		t.Fatal("expected a non-nil metrics handler")
	}

	r.PendingQueueDepth.Set(3)
	r.FetchLatency.Observe(0.01)
	r.CommitLatency.Observe(0.02)
	r.RetriesTotal.Inc()
	r.RejectionsTotal.WithLabelValues("STORE", "4").Inc()
	r.IngestedTotal.WithLabelValues("ethereum").Inc()
}
