package loginsolver

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricStartAccepted)
	m.Observe(MetricAnswerLatency, 20*time.Millisecond)

	if got := m.Value(MetricStartAccepted); got != 0 {
		t.Fatalf("disabled counter = %d, want 0", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricAnswerLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics returned nonzero value")
	}
	if m.Enabled() {
		t.Fatal("nil metrics reported enabled")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricAnswerRelayed)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricAnswerRelayed); got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}

func TestLatencyHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []time.Duration{
		2 * time.Millisecond,   // bucket 0
		8 * time.Millisecond,   // bucket 1
		40 * time.Millisecond,  // bucket 3
		40 * time.Millisecond,  // bucket 3
		900 * time.Millisecond, // bucket 7
	}
	for _, d := range samples {
		m.Observe(MetricAnswerLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricAnswerLatency]
	want := []uint64{1, 1, 0, 2, 0, 0, 0, 1}
	for i, n := range want {
		if buckets[i] != n {
			t.Fatalf("bucket %d = %d, want %d (all: %v)", i, buckets[i], n, buckets)
		}
	}
}

func TestObserveIgnoresNonHistogramIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Second)

	if buckets := m.Snapshot().Histograms[MetricLoginSuccess]; buckets != nil {
		t.Fatalf("unexpected histogram for counter id: %v", buckets)
	}
}
