package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestReadingsReceivedIncrements(t *testing.T) {
	m := NewForTesting()
	m.ReadingsReceived.Inc()
	m.ReadingsReceived.Inc()

	var out dto.Metric
	if err := m.ReadingsReceived.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if out.GetCounter().GetValue() != 2 {
		t.Errorf("ReadingsReceived = %v, want 2", out.GetCounter().GetValue())
	}
}

func TestReadingsRejectedLabelsByReason(t *testing.T) {
	m := NewForTesting()
	m.ReadingsRejected.WithLabelValues("out_of_range").Inc()
	m.ReadingsRejected.WithLabelValues("out_of_range").Inc()
	m.ReadingsRejected.WithLabelValues("missing_field").Inc()

	var out dto.Metric
	if err := m.ReadingsRejected.WithLabelValues("out_of_range").Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if out.GetCounter().GetValue() != 2 {
		t.Errorf("out_of_range rejections = %v, want 2", out.GetCounter().GetValue())
	}
}

func TestNewForTestingDoesNotPanicOnRepeatedConstruction(t *testing.T) {
	// Namespace-prefixed metrics constructed without MustRegister must be
	// safe to build repeatedly within one test binary.
	NewForTesting()
	NewForTesting()
}
