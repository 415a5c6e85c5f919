package session

// Phase is the discrete state of a login attempt's challenge flow.
type Phase uint8

const (
	// PhaseInit is the state of a freshly created session, before the
	// worker has raised its first challenge.
	PhaseInit Phase = iota
	// PhaseNeedSlideCode means a slider captcha is waiting for its solved
	// ticket; the slide URL is set on the session.
	PhaseNeedSlideCode
	// PhaseNeedSendPhoneCode means the protocol offered SMS verification
	// and is waiting for the user's consent to send the code.
	PhaseNeedSendPhoneCode
	// PhaseNeedPhoneCode means the SMS code was sent and the session is
	// waiting for the user to enter it.
	PhaseNeedPhoneCode
	// PhaseNeedJumpVerify means verification continues through an external
	// link; the verify URL is set on the session.
	PhaseNeedJumpVerify
	// PhaseSuccess is terminal: the login attempt completed.
	PhaseSuccess
	// PhaseFailure is terminal: the login attempt failed. The cause is
	// audited, not exposed through the phase.
	PhaseFailure

	// PhaseNoSession and PhaseExistSession are response-only markers
	// synthesized by the Engine. They are never stored on a Session.
	PhaseNoSession
	PhaseExistSession
)

var phaseNames = map[Phase]string{
	PhaseInit:              "INIT",
	PhaseNeedSlideCode:     "NEED_SLIDE_CODE",
	PhaseNeedSendPhoneCode: "NEED_SEND_PHONE_CODE",
	PhaseNeedPhoneCode:     "NEED_PHONE_CODE",
	PhaseNeedJumpVerify:    "NEED_JUMP_VERIFY",
	PhaseSuccess:           "SUCCESS",
	PhaseFailure:           "FAILURE",
	PhaseNoSession:         "NO_SESSION",
	PhaseExistSession:      "EXIST_SESSION",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the phase ends a login attempt. Terminal sessions
// stay queryable until the sweeper reclaims them.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailure
}
