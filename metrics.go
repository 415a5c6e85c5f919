package loginsolver

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricStartAccepted counts Start calls that launched a worker.
	MetricStartAccepted MetricID = iota
	// MetricStartDebounced counts Start calls answered with EXIST_SESSION.
	MetricStartDebounced
	// MetricStartRateLimited counts Start calls rejected by the throttle.
	MetricStartRateLimited
	// MetricLoginSuccess counts attempts reaching SUCCESS.
	MetricLoginSuccess
	// MetricLoginFailure counts attempts reaching FAILURE.
	MetricLoginFailure
	// MetricChallengeSlider counts slider captchas posted to callers.
	MetricChallengeSlider
	// MetricChallengeSMSPrompt counts SMS consent prompts posted.
	MetricChallengeSMSPrompt
	// MetricChallengeSMSCode counts SMS code prompts posted.
	MetricChallengeSMSCode
	// MetricChallengeJump counts external-link verifications posted.
	MetricChallengeJump
	// MetricChallengeUnsupported counts challenge kinds declared unsupported.
	MetricChallengeUnsupported
	// MetricAnswerRelayed counts answers handed to a worker.
	MetricAnswerRelayed
	// MetricAnswerUnconsumed counts answers no worker collected in time.
	MetricAnswerUnconsumed
	// MetricCallerWaitTimeout counts caller-side await expiries (retryable).
	MetricCallerWaitTimeout
	// MetricWorkerWaitTimeout counts worker-side await expiries (fatal).
	MetricWorkerWaitTimeout
	// MetricSessionCreated counts sessions stored in the registry.
	MetricSessionCreated
	// MetricSessionEvicted counts sessions reclaimed by the sweeper.
	MetricSessionEvicted
	// MetricAnswerLatency is the answer-relay latency histogram.
	MetricAnswerLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's lock-free counter set. All methods are safe for
// concurrent use; a nil or disabled receiver is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates the counter set described by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records an answer-relay latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAnswerLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAnswerLatency].buckets[i])
		}
		s.Histograms[MetricAnswerLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
