package loginsolver

import (
	"context"
	"time"

	"github.com/skymks/loginsolver/session"
)

// LoginRequest carries the inputs for one login attempt.
type LoginRequest struct {
	// Principal is the account identity the attempt is keyed on.
	Principal string
	// Credential is the opaque credential material handed to the Driver.
	Credential string
	// Device is the opaque device-fingerprint blob for this principal.
	// When empty and a DeviceStore is configured, the Engine fills it from
	// the store before the worker starts.
	Device string
}

// LoginOutcome reports driver-side results the Engine persists after a
// successful attempt.
type LoginOutcome struct {
	// Device is the refreshed device fingerprint. Empty keeps the stored one.
	Device string
}

// Driver runs the underlying login protocol for one principal. It calls the
// Solver whenever the protocol demands interactive verification, and it must
// release any network resources it opened before returning — on every path,
// so that a caller observing a terminal phase can assume cleanup is done.
//
// The Engine runs each Login on its own goroutine; implementations only need
// to be safe for concurrent calls with distinct requests.
type Driver interface {
	Login(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error)
}

// Solver is the capability set the login protocol calls back into when it
// needs a human-assisted verification step. The Engine binds one Solver to
// each attempt's session; calls block until the human answer arrives or the
// wait window lapses.
type Solver interface {
	// SolvePicCaptcha resolves a picture captcha. This flow declares the
	// kind unsupported and always fails with ErrUnsupportedChallenge.
	SolvePicCaptcha(ctx context.Context, principal string, image []byte) (string, error)
	// SolveSliderCaptcha returns the solved ticket for a slider captcha.
	SolveSliderCaptcha(ctx context.Context, principal, captchaURL string) (string, error)
	// SolveDeviceVerification drives device/account verification to
	// completion through one of the offered branches.
	SolveDeviceVerification(ctx context.Context, principal string, req DeviceVerification) error
}

// DeviceVerification describes the branches the login protocol offers for
// device/account verification. The SMS branch is attempted first when
// present; a declined or absent SMS branch falls through to the fallback.
type DeviceVerification struct {
	SMS      SMSBranch
	Fallback FallbackBranch
}

// SMSBranch is offered when the protocol can deliver a one-time code by SMS.
// RequestCode and SubmitCode are opaque protocol operations; their failures
// surface to the worker as login failures.
type SMSBranch interface {
	// Phone returns the (usually masked) destination number, possibly empty.
	Phone() string
	RequestCode(ctx context.Context) error
	SubmitCode(ctx context.Context, code string) error
}

// FallbackBranch is offered when verification can complete through an
// external web link. Submit relays the user's proof-of-completion.
type FallbackBranch interface {
	URL() string
	Submit(ctx context.Context, ack string) error
}

// DeviceStore persists per-principal device fingerprints across attempts.
// Load returns an empty blob (and no error) when the principal has none.
type DeviceStore interface {
	Load(ctx context.Context, principal string) (string, error)
	Save(ctx context.Context, principal, blob string) error
}

// FlowResult is the snapshot DTO returned by Start, SubmitAnswer and Query.
type FlowResult struct {
	Principal   string
	Phase       session.Phase
	SlideURL    string
	PhoneNumber string
	VerifyURL   string
	LastUpdated time.Time
}

func resultFromSnapshot(principal string, snap session.Snapshot) FlowResult {
	return FlowResult{
		Principal:   principal,
		Phase:       snap.Phase,
		SlideURL:    snap.SlideURL,
		PhoneNumber: snap.PhoneNumber,
		VerifyURL:   snap.VerifyURL,
		LastUpdated: snap.LastUpdated,
	}
}
