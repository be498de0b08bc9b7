package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister_FreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	WorkerRecords.WithLabelValues("unit").Add(2)
	ObserveSearch(time.Now())
	if got := testutil.ToFloat64(WorkerRecords.WithLabelValues("unit")); got < 2 {
		t.Fatalf("records counter = %v, want >= 2", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected gathered metric families")
	}
}
