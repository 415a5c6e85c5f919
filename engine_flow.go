package loginsolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skymks/loginsolver/internal/rate"
	"github.com/skymks/loginsolver/session"
)

// Start begins a login attempt for req.Principal.
//
// A live session younger than the debounce window short-circuits to
// EXIST_SESSION without new work; anything older is superseded. Otherwise a
// fresh session is stored, the worker launches on its own goroutine bound to
// a new challenge bridge, and Start blocks until the worker signals its
// first state change (or the caller wait window lapses, in which case the
// current snapshot is returned with ErrResultPending).
func (e *Engine) Start(ctx context.Context, req LoginRequest) (FlowResult, error) {
	if e == nil || e.registry == nil || e.driver == nil {
		return FlowResult{}, ErrEngineNotReady
	}
	if req.Principal == "" {
		return FlowResult{}, ErrPrincipalRequired
	}

	if prior, ok := e.registry.Find(req.Principal); ok {
		if time.Since(prior.LastUpdated()) < e.config.Flow.DebounceWindow {
			e.metricInc(MetricStartDebounced)
			e.emitAudit(ctx, auditEventStartDebounced, false, req.Principal, "", prior.Phase(), nil, nil)
			return FlowResult{Principal: req.Principal, Phase: session.PhaseExistSession}, nil
		}
	}

	if err := e.checkStartBudget(ctx, req.Principal); err != nil {
		return FlowResult{}, err
	}

	if req.Device == "" && e.deviceStore != nil {
		blob, err := e.deviceStore.Load(ctx, req.Principal)
		if err != nil {
			// A missing or unreachable fingerprint store degrades to a
			// fresh-device login, it does not block the attempt.
			e.emitAudit(ctx, auditEventDevicePersistError, false, req.Principal, "", session.PhaseInit, err, nil)
		} else {
			req.Device = blob
		}
	}

	attemptID := uuid.NewString()
	sess := e.registry.Create(req.Principal)
	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricStartAccepted)
	e.emitAudit(ctx, auditEventStart, true, req.Principal, attemptID, session.PhaseInit, nil, nil)

	// The worker outlives the caller's request; keep context values (client
	// IP for audit) but detach from the caller's cancellation.
	workerCtx := context.WithoutCancel(ctx)
	go e.runWorker(workerCtx, attemptID, req, sess)

	return e.awaitSnapshot(req.Principal, sess)
}

// SubmitAnswer relays a user-entered value — slider ticket, SMS consent, SMS
// code or fallback acknowledgment — into the principal's session, then waits
// for the worker's next state signal and returns the snapshot.
//
// An unknown principal yields a NO_SESSION result and no error.
func (e *Engine) SubmitAnswer(ctx context.Context, principal, value string) (FlowResult, error) {
	if e == nil || e.registry == nil {
		return FlowResult{}, ErrEngineNotReady
	}
	if principal == "" {
		return FlowResult{}, ErrPrincipalRequired
	}

	sess, ok := e.registry.Find(principal)
	if !ok {
		e.emitAudit(ctx, auditEventSessionNotFound, false, principal, "", session.PhaseNoSession, nil, nil)
		return FlowResult{Principal: principal, Phase: session.PhaseNoSession}, nil
	}

	relayStart := time.Now()
	if err := sess.SendRequest(value, e.config.Rendezvous.SendRequestTimeout); err != nil {
		e.metricInc(MetricAnswerUnconsumed)
		e.emitAudit(ctx, auditEventAnswerUnconsumed, false, principal, "", sess.Phase(), err, nil)
		return resultFromSnapshot(principal, sess.Snapshot()), ErrAnswerTimeout
	}
	e.metricInc(MetricAnswerRelayed)
	e.emitAudit(ctx, auditEventAnswer, true, principal, "", sess.Phase(), nil, nil)

	res, err := e.awaitSnapshot(principal, sess)
	e.metricObserve(MetricAnswerLatency, time.Since(relayStart))
	return res, err
}

// Query returns the principal's current snapshot without blocking, or a
// NO_SESSION result when none is live.
func (e *Engine) Query(ctx context.Context, principal string) (FlowResult, error) {
	if e == nil || e.registry == nil {
		return FlowResult{}, ErrEngineNotReady
	}
	if principal == "" {
		return FlowResult{}, ErrPrincipalRequired
	}

	sess, ok := e.registry.Find(principal)
	if !ok {
		return FlowResult{Principal: principal, Phase: session.PhaseNoSession}, nil
	}
	return resultFromSnapshot(principal, sess.Snapshot()), nil
}

// awaitSnapshot blocks on the session's response channel and reports the
// resulting snapshot. A timeout is retryable, not an attempt failure.
func (e *Engine) awaitSnapshot(principal string, sess *session.Session) (FlowResult, error) {
	if _, err := sess.AwaitResponse(e.config.Rendezvous.AwaitResponseTimeout); err != nil {
		e.metricInc(MetricCallerWaitTimeout)
		return resultFromSnapshot(principal, sess.Snapshot()), ErrResultPending
	}
	return resultFromSnapshot(principal, sess.Snapshot()), nil
}

func (e *Engine) checkStartBudget(ctx context.Context, principal string) error {
	if e.rateLimiter == nil {
		return nil
	}

	ip := clientIPFromContext(ctx)
	if err := e.rateLimiter.CheckStart(ctx, principal, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricStartRateLimited)
			e.emitAudit(ctx, auditEventStartRateLimited, false, principal, "", session.PhaseInit, err, nil)
			return ErrStartRateLimited
		}
		return fmt.Errorf("start throttle check: %w", err)
	}
	if err := e.rateLimiter.IncrementStart(ctx, principal, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricStartRateLimited)
			e.emitAudit(ctx, auditEventStartRateLimited, false, principal, "", session.PhaseInit, err, nil)
			return ErrStartRateLimited
		}
		return fmt.Errorf("start throttle increment: %w", err)
	}
	return nil
}

// runWorker drives one attempt to a terminal phase. The driver is expected
// to release its resources before returning, so the terminal phase is only
// set afterwards — a caller observing SUCCESS/FAILURE may assume cleanup is
// complete. The terminal response signal fires exactly once and is
// best-effort: when no caller is waiting the result stays queryable until
// the sweeper reclaims it.
func (e *Engine) runWorker(ctx context.Context, attemptID string, req LoginRequest, sess *session.Session) {
	b := &bridge{
		engine:    e,
		sess:      sess,
		principal: req.Principal,
		attemptID: attemptID,
	}

	outcome, err := e.driver.Login(ctx, req, b)
	if err != nil {
		sess.SetPhase(session.PhaseFailure)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventFailure, false, req.Principal, attemptID, session.PhaseFailure, err, nil)
	} else {
		e.persistDevice(ctx, req.Principal, outcome)
		e.resetStartBudget(ctx, req.Principal)
		sess.SetPhase(session.PhaseSuccess)
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventSuccess, true, req.Principal, attemptID, session.PhaseSuccess, nil, nil)
	}

	_ = sess.SendResponse("OK", e.config.Rendezvous.SendResponseTimeout)
}

func (e *Engine) persistDevice(ctx context.Context, principal string, outcome *LoginOutcome) {
	if e.deviceStore == nil || outcome == nil || outcome.Device == "" {
		return
	}
	if err := e.deviceStore.Save(ctx, principal, outcome.Device); err != nil {
		e.emitAudit(ctx, auditEventDevicePersistError, false, principal, "", session.PhaseSuccess, err, nil)
	}
}

func (e *Engine) resetStartBudget(ctx context.Context, principal string) {
	if e.rateLimiter == nil {
		return
	}
	_ = e.rateLimiter.ResetStart(ctx, principal, clientIPFromContext(ctx))
}
