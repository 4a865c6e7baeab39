package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveInbound("messages.upsert", "accepted")
	m.ObserveInbound("messages.upsert", "accepted")
	m.ObserveCommit("created")
	m.ObserveExtraction("regex", "ok")
	m.ObserveEvaluation("confirmed", false)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("messages.upsert", "accepted")); got != 2 {
		t.Fatalf("expected 2 inbound, got %v", got)
	}
	if got := testutil.ToFloat64(m.commitTotal.WithLabelValues("created")); got != 1 {
		t.Fatalf("expected 1 commit, got %v", got)
	}
	if got := testutil.ToFloat64(m.extractionTotal.WithLabelValues("regex", "ok")); got != 1 {
		t.Fatalf("expected 1 extraction, got %v", got)
	}
}

func TestBookingMetricsHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveWebhookLatency("messages.upsert", 0.05)
	m.ObserveLLMLatency("ok", 1.5)

	if n := testutil.CollectAndCount(m.llmLatency); n != 1 {
		t.Fatalf("expected 1 llm latency series, got %d", n)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveInbound("event", "status")
	m.ObserveOutbound("sent")
	m.ObserveWebhookLatency("event", 0.1)
	m.ObserveEvaluation("collecting", true)
	m.ObserveExtraction("model", "insufficient")
	m.ObserveCommit("duplicate")
	m.ObserveLLMLatency("error", 2)
}
