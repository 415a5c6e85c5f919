package loginsolver

import (
	"context"
	"time"

	"github.com/skymks/loginsolver/internal/rate"
	"github.com/skymks/loginsolver/session"
)

// Engine is the flow orchestrator: it owns the session registry and relays
// between external callers and per-attempt login workers. Construct one
// through [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config      Config
	registry    *session.Registry
	driver      Driver
	deviceStore DeviceStore
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close stops the registry sweeper and the audit dispatcher. Sessions still
// in flight keep their workers; their terminal phases remain queryable until
// the process exits.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.registry != nil {
		e.registry.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events the dispatcher discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters for export.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionCount reports the number of live sessions in the registry.
func (e *Engine) SessionCount() int {
	if e == nil || e.registry == nil {
		return 0
	}
	return e.registry.Len()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principal string,
	attemptID string,
	phase session.Phase,
	cause error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Principal: principal,
		AttemptID: attemptID,
		Phase:     phase.String(),
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) onEvict(id string, snap session.Snapshot) {
	e.metricInc(MetricSessionEvicted)
	e.emitAudit(context.Background(), auditEventSessionEvicted, true, id, "", snap.Phase, nil, nil)
}
