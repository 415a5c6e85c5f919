package loginsolver

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// the Builder finished assembly.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrPrincipalRequired is returned when a flow operation is called with
	// an empty principal identifier.
	ErrPrincipalRequired = errors.New("principal identifier required")
	// ErrStartRateLimited is returned when a principal or IP exceeded its
	// start-attempt budget.
	ErrStartRateLimited = errors.New("login start rate limited")
	// ErrResultPending is returned together with a snapshot when the worker
	// did not signal a state change within the caller's wait window. The
	// underlying step is still in progress; the caller should query again.
	ErrResultPending = errors.New("login step still in progress")
	// ErrAnswerTimeout is returned when no worker consumed a submitted
	// answer within the hand-off window: the previous round has not been
	// collected yet, or the attempt already reached a terminal phase.
	ErrAnswerTimeout = errors.New("answer not consumed")
	// ErrUnsupportedChallenge is raised by the bridge when the login
	// protocol demands a verification kind this flow cannot relay
	// (picture captcha, or a device verification with no usable branch).
	ErrUnsupportedChallenge = errors.New("unsupported challenge kind")
	// ErrUserRejected is raised when the user declines SMS verification and
	// the protocol offers no fallback. Fatal for that attempt.
	ErrUserRejected = errors.New("verification rejected by user")
)
