package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncMetricsExportsCountersGaugesAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.IncSubmit(SubmitPathDirect)
	m.IncSubmit(SubmitPathQueued)
	m.IncSubmit(SubmitPathQueued)
	m.IncOutcome(OutcomeSynced)
	m.IncOutcome("")
	m.ObservePass(150 * time.Millisecond)
	m.SetQueueDepth(3)
	m.SetOnline(true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "sync_submits_total", "path", SubmitPathQueued); err != nil {
		t.Fatalf("fetch submits: %v", err)
	} else if got != 2 {
		t.Fatalf("expected queued=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sync_reconcile_entries_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch outcome: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sync_connectivity_transitions_total", "to", "online"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected online transitions=1, got %f", got)
	}

	if got := fetchGaugeValue(mfs, "sync_queue_depth"); got != 3 {
		t.Fatalf("expected depth=3, got %f", got)
	}
	if got := fetchGaugeValue(mfs, "sync_connectivity_online"); got != 1 {
		t.Fatalf("expected online=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "sync_reconcile_pass_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() <= 0 {
		t.Fatalf("expected pass duration sum > 0")
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncSubmit(SubmitPathDirect)
	m.SetOnline(false)

	unregistered := NewSyncMetrics(nil)
	unregistered.SetQueueDepth(1)
	unregistered.ObservePass(time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
