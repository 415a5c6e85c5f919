package loginsolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/skymks/loginsolver/session"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func throttleConfig(maxAttempts int) Config {
	cfg := flowTestConfig()
	cfg.Flow.DebounceWindow = 0
	cfg.Security.EnableStartThrottle = true
	cfg.Security.MaxStartAttempts = maxAttempts
	cfg.Security.StartCooldownDuration = time.Minute
	return cfg
}

func TestStartThrottleBlocksAfterBudget(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return nil, errors.New("bad credential")
		},
	}

	engine, err := New().
		WithConfig(throttleConfig(2)).
		WithDriver(driver).
		WithRedis(newTestRedis(t)).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	for i := 0; i < 2; i++ {
		res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
		if err != nil {
			t.Fatalf("start %d failed: %v", i+1, err)
		}
		if res.Phase != session.PhaseFailure {
			t.Fatalf("start %d phase = %v, want FAILURE", i+1, res.Phase)
		}
	}

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); !errors.Is(err, ErrStartRateLimited) {
		t.Fatalf("expected ErrStartRateLimited, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricStartRateLimited]; got != 1 {
		t.Fatalf("rate limited counter = %d, want 1", got)
	}

	// Other principals keep their own budget.
	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10002"}); err != nil {
		t.Fatalf("unrelated principal throttled: %v", err)
	}
}

func TestSuccessResetsStartBudget(t *testing.T) {
	driver := &scriptedDriver{
		login: func(context.Context, LoginRequest, Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}

	engine, err := New().
		WithConfig(throttleConfig(2)).
		WithDriver(driver).
		WithRedis(newTestRedis(t)).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	// Each success resets the budget; many more starts than the budget
	// allows must all pass.
	for i := 0; i < 5; i++ {
		res, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"})
		if err != nil {
			t.Fatalf("start %d failed: %v", i+1, err)
		}
		if res.Phase != session.PhaseSuccess {
			t.Fatalf("start %d phase = %v, want SUCCESS", i+1, res.Phase)
		}
	}
}

func TestDevicePersistenceViaRedis(t *testing.T) {
	cfg := flowTestConfig()
	cfg.Flow.DebounceWindow = 0
	cfg.Device.Enabled = true

	var seen []string
	driver := &scriptedDriver{
		login: func(_ context.Context, req LoginRequest, _ Solver) (*LoginOutcome, error) {
			seen = append(seen, req.Device)
			return &LoginOutcome{Device: "fp-" + req.Principal}, nil
		},
	}

	engine, err := New().
		WithConfig(cfg).
		WithDriver(driver).
		WithRedis(newTestRedis(t)).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := engine.Start(context.Background(), LoginRequest{Principal: "10001"}); err != nil {
		t.Fatalf("repeat start failed: %v", err)
	}

	// The worker persists the refreshed fingerprint before it signals the
	// terminal phase, so the second attempt must have loaded it.
	if len(seen) != 2 {
		t.Fatalf("driver ran %d times, want 2", len(seen))
	}
	if seen[0] != "" {
		t.Fatalf("first attempt saw device %q, want empty", seen[0])
	}
	if seen[1] != "fp-10001" {
		t.Fatalf("second attempt saw device %q, want %q", seen[1], "fp-10001")
	}
}
