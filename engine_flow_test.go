package loginsolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skymks/loginsolver/session"
)

type scriptedDriver struct {
	login func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error)
	calls atomic.Int32

	mu      sync.Mutex
	lastErr error
}

func (d *scriptedDriver) Login(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
	d.calls.Add(1)
	outcome, err := d.login(ctx, req, solver)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return outcome, err
}

func (d *scriptedDriver) loginErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

type fakeSMSBranch struct {
	phone string

	mu        sync.Mutex
	requested bool
	code      string
}

func (b *fakeSMSBranch) Phone() string { return b.phone }

func (b *fakeSMSBranch) RequestCode(context.Context) error {
	b.mu.Lock()
	b.requested = true
	b.mu.Unlock()
	return nil
}

func (b *fakeSMSBranch) SubmitCode(_ context.Context, code string) error {
	b.mu.Lock()
	b.code = code
	b.mu.Unlock()
	return nil
}

type fakeFallbackBranch struct {
	url string

	mu  sync.Mutex
	ack string
}

func (b *fakeFallbackBranch) URL() string { return b.url }

func (b *fakeFallbackBranch) Submit(_ context.Context, ack string) error {
	b.mu.Lock()
	b.ack = ack
	b.mu.Unlock()
	return nil
}

func flowTestConfig() Config {
	cfg := defaultConfig()
	cfg.Rendezvous.SendRequestTimeout = time.Second
	cfg.Rendezvous.AwaitResponseTimeout = 2 * time.Second
	cfg.Rendezvous.SendResponseTimeout = 2 * time.Second
	return cfg
}

func newFlowEngine(t *testing.T, cfg Config, d Driver) *Engine {
	t.Helper()

	engine, err := New().WithConfig(cfg).WithDriver(d).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func queryUntilPhase(t *testing.T, e *Engine, principal string, want session.Phase) FlowResult {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		res, err := e.Query(context.Background(), principal)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if res.Phase == want {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase never reached %v, last %v", want, res.Phase)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartImmediateSuccess(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001", Credential: "pw"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.Phase != session.PhaseSuccess {
		t.Fatalf("phase = %v, want SUCCESS", res.Phase)
	}
	if got := engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("login success counter = %d, want 1", got)
	}
}

func TestStartDebounceReturnsExistSession(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if res.Phase != session.PhaseExistSession {
		t.Fatalf("phase = %v, want EXIST_SESSION", res.Phase)
	}
	if driver.calls.Load() != 1 {
		t.Fatalf("second start launched a worker: %d calls", driver.calls.Load())
	}
	if got := engine.MetricsSnapshot().Counters[MetricStartDebounced]; got != 1 {
		t.Fatalf("debounced counter = %d, want 1", got)
	}
}

func TestStartSupersedesStaleSession(t *testing.T) {
	cfg := flowTestConfig()
	cfg.Flow.DebounceWindow = 10 * time.Millisecond

	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, cfg, driver)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if res.Phase != session.PhaseSuccess {
		t.Fatalf("phase = %v, want SUCCESS from the superseding attempt", res.Phase)
	}
	if driver.calls.Load() != 2 {
		t.Fatalf("driver calls = %d, want 2", driver.calls.Load())
	}
}

func TestSliderFlow(t *testing.T) {
	var received atomic.Value
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			code, err := solver.SolveSliderCaptcha(ctx, req.Principal, "http://x")
			if err != nil {
				return nil, err
			}
			received.Store(code)
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.Phase != session.PhaseNeedSlideCode {
		t.Fatalf("phase = %v, want NEED_SLIDE_CODE", res.Phase)
	}
	if res.SlideURL != "http://x" {
		t.Fatalf("slideURL = %q, want %q", res.SlideURL, "http://x")
	}

	res, err = engine.SubmitAnswer(context.Background(), "10001", "abcd")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Phase != session.PhaseSuccess {
		t.Fatalf("phase after answer = %v, want SUCCESS", res.Phase)
	}
	if got, _ := received.Load().(string); got != "abcd" {
		t.Fatalf("worker received %q, want %q", got, "abcd")
	}
}

func TestSMSFlow(t *testing.T) {
	sms := &fakeSMSBranch{phone: "+1 555"}
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			if err := solver.SolveDeviceVerification(ctx, req.Principal, DeviceVerification{SMS: sms}); err != nil {
				return nil, err
			}
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.Phase != session.PhaseNeedSendPhoneCode {
		t.Fatalf("phase = %v, want NEED_SEND_PHONE_CODE", res.Phase)
	}
	if res.PhoneNumber != "+1 555" {
		t.Fatalf("phoneNumber = %q", res.PhoneNumber)
	}

	res, err = engine.SubmitAnswer(context.Background(), "10001", "YES")
	if err != nil {
		t.Fatalf("consent submit failed: %v", err)
	}
	if res.Phase != session.PhaseNeedPhoneCode {
		t.Fatalf("phase after consent = %v, want NEED_PHONE_CODE", res.Phase)
	}

	res, err = engine.SubmitAnswer(context.Background(), "10001", "123456")
	if err != nil {
		t.Fatalf("code submit failed: %v", err)
	}
	if res.Phase != session.PhaseSuccess {
		t.Fatalf("phase after code = %v, want SUCCESS", res.Phase)
	}

	sms.mu.Lock()
	defer sms.mu.Unlock()
	if !sms.requested {
		t.Fatal("SMS send was never requested")
	}
	if sms.code != "123456" {
		t.Fatalf("submitted code = %q, want %q", sms.code, "123456")
	}
}

func TestSMSDeclinedFallsBackToJump(t *testing.T) {
	sms := &fakeSMSBranch{phone: "+1 555"}
	fallback := &fakeFallbackBranch{url: "http://verify.example/v"}
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			req2 := DeviceVerification{SMS: sms, Fallback: fallback}
			if err := solver.SolveDeviceVerification(ctx, req.Principal, req2); err != nil {
				return nil, err
			}
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	res, err := engine.SubmitAnswer(context.Background(), "10001", "no")
	if err != nil {
		t.Fatalf("decline submit failed: %v", err)
	}
	if res.Phase != session.PhaseNeedJumpVerify {
		t.Fatalf("phase after decline = %v, want NEED_JUMP_VERIFY", res.Phase)
	}
	if res.VerifyURL != "http://verify.example/v" {
		t.Fatalf("verifyURL = %q", res.VerifyURL)
	}

	sms.mu.Lock()
	requested := sms.requested
	sms.mu.Unlock()
	if requested {
		t.Fatal("SMS was sent despite decline")
	}

	res, err = engine.SubmitAnswer(context.Background(), "10001", "done")
	if err != nil {
		t.Fatalf("ack submit failed: %v", err)
	}
	if res.Phase != session.PhaseSuccess {
		t.Fatalf("phase after ack = %v, want SUCCESS", res.Phase)
	}

	fallback.mu.Lock()
	defer fallback.mu.Unlock()
	if fallback.ack != "done" {
		t.Fatalf("fallback ack = %q, want %q", fallback.ack, "done")
	}
}

func TestSMSDeclinedWithoutFallbackFails(t *testing.T) {
	sms := &fakeSMSBranch{phone: "+1 555"}
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			if err := solver.SolveDeviceVerification(ctx, req.Principal, DeviceVerification{SMS: sms}); err != nil {
				return nil, err
			}
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	res, err := engine.SubmitAnswer(context.Background(), "10001", "no")
	if err != nil {
		t.Fatalf("decline submit failed: %v", err)
	}
	if res.Phase != session.PhaseFailure {
		t.Fatalf("phase = %v, want FAILURE", res.Phase)
	}
	if !errors.Is(driver.loginErr(), ErrUserRejected) {
		t.Fatalf("driver error = %v, want ErrUserRejected", driver.loginErr())
	}
}

func TestPictureCaptchaUnsupported(t *testing.T) {
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			if _, err := solver.SolvePicCaptcha(ctx, req.Principal, []byte{0x89}); err != nil {
				return nil, err
			}
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.Phase != session.PhaseFailure {
		t.Fatalf("phase = %v, want FAILURE", res.Phase)
	}
	if !errors.Is(driver.loginErr(), ErrUnsupportedChallenge) {
		t.Fatalf("driver error = %v, want ErrUnsupportedChallenge", driver.loginErr())
	}
}

func TestSubmitAnswerUnknownPrincipal(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.SubmitAnswer(context.Background(), "90009", "abcd")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Phase != session.PhaseNoSession {
		t.Fatalf("phase = %v, want NO_SESSION", res.Phase)
	}
}

func TestQueryUnknownPrincipal(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	res, err := engine.Query(context.Background(), "90009")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if res.Phase != session.PhaseNoSession {
		t.Fatalf("phase = %v, want NO_SESSION", res.Phase)
	}
}

func TestWorkerAwaitTimeoutFailsAttempt(t *testing.T) {
	cfg := flowTestConfig()
	cfg.Rendezvous.AwaitRequestTimeout = 50 * time.Millisecond
	cfg.Rendezvous.SendRequestTimeout = 50 * time.Millisecond

	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, solver Solver) (*LoginOutcome, error) {
			if _, err := solver.SolveSliderCaptcha(ctx, req.Principal, "http://x"); err != nil {
				return nil, err
			}
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, cfg, driver)

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.Phase != session.PhaseNeedSlideCode {
		t.Fatalf("phase = %v, want NEED_SLIDE_CODE", res.Phase)
	}

	// No answer arrives; the worker's wait expires and the attempt fails.
	queryUntilPhase(t, engine, "10001", session.PhaseFailure)

	res, err = engine.SubmitAnswer(context.Background(), "10001", "late")
	if !errors.Is(err, ErrAnswerTimeout) {
		t.Fatalf("expected ErrAnswerTimeout, got %v", err)
	}
	if res.Phase != session.PhaseFailure {
		t.Fatalf("late answer changed phase to %v", res.Phase)
	}
	if got := engine.MetricsSnapshot().Counters[MetricWorkerWaitTimeout]; got == 0 {
		t.Fatal("worker wait timeout was not counted")
	}
}

func TestCallerWaitTimeoutIsRetryable(t *testing.T) {
	cfg := flowTestConfig()
	cfg.Rendezvous.AwaitResponseTimeout = 50 * time.Millisecond

	release := make(chan struct{})
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			<-release
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, cfg, driver)
	t.Cleanup(func() { close(release) })

	res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
	if !errors.Is(err, ErrResultPending) {
		t.Fatalf("expected ErrResultPending, got %v", err)
	}
	if res.Phase != session.PhaseInit {
		t.Fatalf("phase = %v, want INIT while the step is in progress", res.Phase)
	}
	if got := engine.MetricsSnapshot().Counters[MetricCallerWaitTimeout]; got != 1 {
		t.Fatalf("caller wait timeout counter = %d, want 1", got)
	}
}

func TestStartValidatesPrincipal(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	engine := newFlowEngine(t, flowTestConfig(), driver)

	if _, err := engine.Start(context.Background(), LoginRequest{}); !errors.Is(err, ErrPrincipalRequired) {
		t.Fatalf("expected ErrPrincipalRequired, got %v", err)
	}
	if _, err := engine.SubmitAnswer(context.Background(), "", "x"); !errors.Is(err, ErrPrincipalRequired) {
		t.Fatalf("expected ErrPrincipalRequired, got %v", err)
	}
	if _, err := engine.Query(context.Background(), ""); !errors.Is(err, ErrPrincipalRequired) {
		t.Fatalf("expected ErrPrincipalRequired, got %v", err)
	}
}

func TestDeviceFingerprintRoundTrip(t *testing.T) {
	store := NewMemoryDeviceStore()
	if err := store.Save(context.Background(), "10001", "blob-v1"); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	var seen atomic.Value
	driver := &scriptedDriver{
		login: func(_ context.Context, req LoginRequest, _ Solver) (*LoginOutcome, error) {
			seen.Store(req.Device)
			return &LoginOutcome{Device: "blob-v2"}, nil
		},
	}

	engine, err := New().
		WithConfig(flowTestConfig()).
		WithDriver(driver).
		WithDeviceStore(store).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if got, _ := seen.Load().(string); got != "blob-v1" {
		t.Fatalf("worker saw device %q, want stored %q", got, "blob-v1")
	}

	deadline := time.Now().Add(time.Second)
	for {
		blob, _ := store.Load(context.Background(), "10001")
		if blob == "blob-v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refreshed fingerprint never persisted, have %q", blob)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
