package loginsolver

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero send request timeout", func(c *Config) { c.Rendezvous.SendRequestTimeout = 0 }},
		{"zero await response timeout", func(c *Config) { c.Rendezvous.AwaitResponseTimeout = 0 }},
		{"zero sweep interval", func(c *Config) { c.Registry.SweepInterval = 0 }},
		{"zero idle ttl", func(c *Config) { c.Registry.IdleTTL = 0 }},
		{"ttl below worker wait", func(c *Config) {
			c.Registry.IdleTTL = time.Minute
			c.Rendezvous.AwaitRequestTimeout = time.Hour
		}},
		{"negative debounce", func(c *Config) { c.Flow.DebounceWindow = -time.Second }},
		{"throttle without budget", func(c *Config) {
			c.Security.EnableStartThrottle = true
			c.Security.MaxStartAttempts = 0
		}},
		{"throttle without cooldown", func(c *Config) {
			c.Security.EnableStartThrottle = true
			c.Security.StartCooldownDuration = 0
		}},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuildRequiresDriver(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without a driver")
	}
}

func TestBuildRequiresRedisForThrottle(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.EnableStartThrottle = true

	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, s Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	if _, err := New().WithConfig(cfg).WithDriver(driver).Build(); err == nil {
		t.Fatal("expected error: throttle without redis")
	}
}

func TestBuildRequiresBackendForDevicePersistence(t *testing.T) {
	cfg := defaultConfig()
	cfg.Device.Enabled = true

	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, s Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}
	if _, err := New().WithConfig(cfg).WithDriver(driver).Build(); err == nil {
		t.Fatal("expected error: device persistence without backend")
	}

	engine, err := New().
		WithConfig(cfg).
		WithDriver(driver).
		WithDeviceStore(NewMemoryDeviceStore()).
		Build()
	if err != nil {
		t.Fatalf("explicit store should satisfy device persistence: %v", err)
	}
	engine.Close()
}

func TestBuilderIsSingleUse(t *testing.T) {
	driver := &scriptedDriver{
		login: func(ctx context.Context, req LoginRequest, s Solver) (*LoginOutcome, error) {
			return &LoginOutcome{}, nil
		},
	}

	b := New().WithDriver(driver)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}
