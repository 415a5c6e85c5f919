package loginsolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/skymks/loginsolver/session"
)

// bridge binds one login attempt's Solver callbacks to its session. Each
// callback publishes the challenge on the session, wakes the waiting caller
// through the response channel, then blocks on the request channel until the
// caller relays the human answer. A worker-side wait expiry is fatal for the
// attempt; the error propagates through the driver and the worker records
// FAILURE.
type bridge struct {
	engine    *Engine
	sess      *session.Session
	principal string
	attemptID string
}

var _ Solver = (*bridge)(nil)

// SolvePicCaptcha always fails: this flow relays only slider and device
// verification.
func (b *bridge) SolvePicCaptcha(ctx context.Context, principal string, image []byte) (string, error) {
	b.engine.metricInc(MetricChallengeUnsupported)
	b.engine.emitAudit(ctx, auditEventChallenge, false, b.principal, b.attemptID, b.sess.Phase(), ErrUnsupportedChallenge, func() map[string]string {
		return map[string]string{"kind": "picture"}
	})
	return "", fmt.Errorf("picture captcha: %w", ErrUnsupportedChallenge)
}

// SolveSliderCaptcha publishes the slider URL, hands control to the caller,
// and returns the solved ticket the caller submits.
func (b *bridge) SolveSliderCaptcha(ctx context.Context, principal, captchaURL string) (string, error) {
	b.sess.PostSlide(captchaURL)
	b.engine.metricInc(MetricChallengeSlider)
	b.engine.emitAudit(ctx, auditEventChallenge, true, b.principal, b.attemptID, session.PhaseNeedSlideCode, nil, func() map[string]string {
		return map[string]string{"kind": "slider"}
	})

	if err := b.handOff(ctx); err != nil {
		return "", fmt.Errorf("slider hand-off: %w", err)
	}

	code, err := b.awaitAnswer(ctx)
	if err != nil {
		return "", fmt.Errorf("slider ticket: %w", err)
	}
	return code, nil
}

// SolveDeviceVerification tries the SMS branch first when offered; a decline
// or an absent SMS branch falls through to the fallback link. Declining with
// no fallback fails the attempt as a user rejection.
func (b *bridge) SolveDeviceVerification(ctx context.Context, principal string, req DeviceVerification) error {
	if req.SMS == nil && req.Fallback == nil {
		b.engine.metricInc(MetricChallengeUnsupported)
		b.engine.emitAudit(ctx, auditEventChallenge, false, b.principal, b.attemptID, b.sess.Phase(), ErrUnsupportedChallenge, func() map[string]string {
			return map[string]string{"kind": "device"}
		})
		return fmt.Errorf("device verification offered no branch: %w", ErrUnsupportedChallenge)
	}

	if req.SMS != nil {
		consented, err := b.promptSMSConsent(ctx, req.SMS)
		if err != nil {
			return err
		}
		if consented {
			return b.runSMSBranch(ctx, req.SMS)
		}
		if req.Fallback == nil {
			b.engine.emitAudit(ctx, auditEventChallenge, false, b.principal, b.attemptID, b.sess.Phase(), ErrUserRejected, func() map[string]string {
				return map[string]string{"kind": "sms"}
			})
			return fmt.Errorf("sms declined with no fallback: %w", ErrUserRejected)
		}
	}

	return b.runFallbackBranch(ctx, req.Fallback)
}

// promptSMSConsent asks the caller whether to send the code. Anything other
// than "yes" (case-insensitive) is a decline; no SMS is sent.
func (b *bridge) promptSMSConsent(ctx context.Context, sms SMSBranch) (bool, error) {
	b.sess.PostSMSPrompt(sms.Phone())
	b.engine.metricInc(MetricChallengeSMSPrompt)
	b.engine.emitAudit(ctx, auditEventChallenge, true, b.principal, b.attemptID, session.PhaseNeedSendPhoneCode, nil, func() map[string]string {
		return map[string]string{"kind": "sms_consent"}
	})

	if err := b.handOff(ctx); err != nil {
		return false, fmt.Errorf("sms consent hand-off: %w", err)
	}

	answer, err := b.awaitAnswer(ctx)
	if err != nil {
		return false, fmt.Errorf("sms consent: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes"), nil
}

func (b *bridge) runSMSBranch(ctx context.Context, sms SMSBranch) error {
	if err := sms.RequestCode(ctx); err != nil {
		return fmt.Errorf("request sms code: %w", err)
	}

	b.sess.SetPhase(session.PhaseNeedPhoneCode)
	b.engine.metricInc(MetricChallengeSMSCode)
	b.engine.emitAudit(ctx, auditEventChallenge, true, b.principal, b.attemptID, session.PhaseNeedPhoneCode, nil, func() map[string]string {
		return map[string]string{"kind": "sms_code"}
	})

	if err := b.handOff(ctx); err != nil {
		return fmt.Errorf("sms code hand-off: %w", err)
	}

	code, err := b.awaitAnswer(ctx)
	if err != nil {
		return fmt.Errorf("sms code: %w", err)
	}

	if err := sms.SubmitCode(ctx, code); err != nil {
		return fmt.Errorf("submit sms code: %w", err)
	}
	return nil
}

func (b *bridge) runFallbackBranch(ctx context.Context, fallback FallbackBranch) error {
	b.sess.PostJump(fallback.URL())
	b.engine.metricInc(MetricChallengeJump)
	b.engine.emitAudit(ctx, auditEventChallenge, true, b.principal, b.attemptID, session.PhaseNeedJumpVerify, nil, func() map[string]string {
		return map[string]string{"kind": "fallback"}
	})

	if err := b.handOff(ctx); err != nil {
		return fmt.Errorf("fallback hand-off: %w", err)
	}

	ack, err := b.awaitAnswer(ctx)
	if err != nil {
		return fmt.Errorf("fallback acknowledgment: %w", err)
	}

	if err := fallback.Submit(ctx, ack); err != nil {
		return fmt.Errorf("submit fallback acknowledgment: %w", err)
	}
	return nil
}

// handOff wakes the caller blocked in awaitSnapshot. A timeout here means
// no caller is listening for a required mid-flow transition; that abandons
// the attempt just like a missing answer.
func (b *bridge) handOff(ctx context.Context) error {
	if err := b.sess.SendResponse("OK", b.engine.config.Rendezvous.SendResponseTimeout); err != nil {
		b.engine.metricInc(MetricWorkerWaitTimeout)
		b.engine.emitAudit(ctx, auditEventRendezvousTimeout, false, b.principal, b.attemptID, b.sess.Phase(), err, func() map[string]string {
			return map[string]string{"side": "worker", "op": "send_response"}
		})
		return err
	}
	return nil
}

// awaitAnswer blocks the worker until the caller relays the human answer.
func (b *bridge) awaitAnswer(ctx context.Context) (string, error) {
	answer, err := b.sess.AwaitRequest(b.engine.config.Rendezvous.AwaitRequestTimeout)
	if err != nil {
		b.engine.metricInc(MetricWorkerWaitTimeout)
		b.engine.emitAudit(ctx, auditEventRendezvousTimeout, false, b.principal, b.attemptID, b.sess.Phase(), err, func() map[string]string {
			return map[string]string{"side": "worker", "op": "await_request"}
		})
		return "", err
	}
	return answer, nil
}
