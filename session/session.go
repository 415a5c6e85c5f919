package session

import (
	"errors"
	"sync"
	"time"
)

// ErrRendezvousTimeout is returned by the hand-off primitives when no
// counterpart arrives within the allowed window. On the worker side it is
// fatal for that login attempt; on the caller side it means retry.
var ErrRendezvousTimeout = errors.New("rendezvous timeout")

// Session pairs one long-running login worker with repeated short-lived
// external calls for a single principal.
//
// Only the worker (through the challenge bridge) writes the phase and
// challenge fields; callers read them through [Session.Snapshot]. A session
// mutex keeps those two from racing. Challenge fields from an earlier phase
// are never cleared — callers correlate a field with the phase that set it.
type Session struct {
	id string

	mu          sync.RWMutex
	phase       Phase
	lastUpdated time.Time
	slideURL    string
	phoneNumber string
	verifyURL   string

	requestCh  chan string // external caller -> worker
	responseCh chan string // worker -> external caller
}

// Snapshot is an immutable copy of the reportable session state.
type Snapshot struct {
	Phase       Phase
	SlideURL    string
	PhoneNumber string
	VerifyURL   string
	LastUpdated time.Time
}

// New creates a session in PhaseInit for the given principal identifier.
// Both hand-off channels are unbuffered.
func New(id string) *Session {
	return &Session{
		id:          id,
		phase:       PhaseInit,
		lastUpdated: time.Now(),
		requestCh:   make(chan string),
		responseCh:  make(chan string),
	}
}

// ID returns the principal identifier the session is keyed on.
func (s *Session) ID() string {
	return s.id
}

// SendRequest hands a user-supplied answer to the worker. It completes only
// if the worker is blocked in [Session.AwaitRequest] within the timeout.
func (s *Session) SendRequest(value string, timeout time.Duration) error {
	return send(s.requestCh, value, timeout)
}

// AwaitRequest blocks the worker until a caller delivers an answer. A
// timeout here means the login attempt was abandoned; the worker must treat
// it as fatal and clean up.
func (s *Session) AwaitRequest(timeout time.Duration) (string, error) {
	return receive(s.requestCh, timeout)
}

// SendResponse signals a waiting caller that the session state changed and a
// fresh snapshot is available.
func (s *Session) SendResponse(value string, timeout time.Duration) error {
	return send(s.responseCh, value, timeout)
}

// AwaitResponse blocks a caller until the worker signals the next state
// change. A timeout is non-fatal: the underlying step is still in progress
// and the caller should query again.
func (s *Session) AwaitResponse(timeout time.Duration) (string, error) {
	return receive(s.responseCh, timeout)
}

func send(ch chan<- string, value string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- value:
		return nil
	case <-timer.C:
		return ErrRendezvousTimeout
	}
}

func receive(ch <-chan string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return "", ErrRendezvousTimeout
	}
}

// SetPhase moves the session to the given phase and refreshes lastUpdated.
// Response-only marker phases are rejected silently; they never belong on a
// stored session.
func (s *Session) SetPhase(p Phase) {
	if p == PhaseNoSession || p == PhaseExistSession {
		return
	}

	s.mu.Lock()
	s.phase = p
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// PostSlide records the slider captcha URL and enters PhaseNeedSlideCode.
func (s *Session) PostSlide(url string) {
	s.mu.Lock()
	s.slideURL = url
	s.phase = PhaseNeedSlideCode
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// PostSMSPrompt records the (possibly masked) phone number and enters
// PhaseNeedSendPhoneCode, asking the user to consent to an SMS code.
func (s *Session) PostSMSPrompt(phone string) {
	s.mu.Lock()
	s.phoneNumber = phone
	s.phase = PhaseNeedSendPhoneCode
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// PostJump records the external verification URL and enters
// PhaseNeedJumpVerify.
func (s *Session) PostJump(url string) {
	s.mu.Lock()
	s.verifyURL = url
	s.phase = PhaseNeedJumpVerify
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// LastUpdated returns the time of the most recent phase transition. It is
// monotonically non-decreasing and the sole input to registry eviction.
func (s *Session) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Snapshot returns an immutable copy of the reportable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Phase:       s.phase,
		SlideURL:    s.slideURL,
		PhoneNumber: s.phoneNumber,
		VerifyURL:   s.verifyURL,
		LastUpdated: s.lastUpdated,
	}
}
